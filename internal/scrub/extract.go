package scrub

import (
	"strings"

	"github.com/sells-group/leadscrub/internal/model"
)

// NormalizePhone trims surrounding whitespace. An empty result is not a phone.
func NormalizePhone(cell string) (string, bool) {
	p := strings.TrimSpace(cell)
	return p, p != ""
}

// eachPhone calls fn for every configured phone cell of row that is in range
// and non-empty, in configuration order.
func eachPhone(row []string, phoneCols []int, fn func(slot, col int, phone string)) {
	for slot, col := range phoneCols {
		if col >= len(row) {
			continue
		}
		if phone, ok := NormalizePhone(row[col]); ok {
			fn(slot, col, phone)
		}
	}
}

// DedupPhones returns every distinct phone found in rows exactly once, in
// first-occurrence order.
func DedupPhones(rows [][]string, l Layout) []string {
	seen := make(map[string]struct{})
	var phones []string
	for _, row := range rows {
		eachPhone(row, l.Phone, func(_, _ int, phone string) {
			if _, ok := seen[phone]; ok {
				return
			}
			seen[phone] = struct{}{}
			phones = append(phones, phone)
		})
	}
	return phones
}

// Expand emits one record per non-empty phone cell, tagged with its slot and
// carrying the row's non-phone cells.
func Expand(rows [][]string, l Layout) []model.ExpandedPhoneRecord {
	var out []model.ExpandedPhoneRecord
	for _, row := range rows {
		var nonPhone []string
		eachPhone(row, l.Phone, func(slot, _ int, phone string) {
			if nonPhone == nil {
				nonPhone = l.NonPhoneValues(row)
			}
			out = append(out, model.ExpandedPhoneRecord{
				Phone:        phone,
				Slot:         slot,
				NonPhoneData: nonPhone,
			})
		})
	}
	return out
}
