package scrub

import "sync"

// SuppressedSet accumulates the phones reported suppressed across all lookup
// batches of one job. Adding is a set union, so the order in which batches
// complete does not change the result. Safe for concurrent use.
type SuppressedSet struct {
	mu     sync.RWMutex
	phones map[string]struct{}
}

// NewSuppressedSet returns an empty set.
func NewSuppressedSet(phones ...string) *SuppressedSet {
	s := &SuppressedSet{phones: make(map[string]struct{})}
	s.Add(phones...)
	return s
}

// Add unions phones into the set. Values are trimmed; blanks are ignored.
func (s *SuppressedSet) Add(phones ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range phones {
		if p, ok := NormalizePhone(p); ok {
			s.phones[p] = struct{}{}
		}
	}
}

// Has reports whether phone is suppressed.
func (s *SuppressedSet) Has(phone string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.phones[phone]
	return ok
}

// Len returns the number of distinct suppressed phones.
func (s *SuppressedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.phones)
}

// CountIn returns how many of phones are suppressed.
func (s *SuppressedSet) CountIn(phones []string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range phones {
		if _, ok := s.phones[p]; ok {
			n++
		}
	}
	return n
}
