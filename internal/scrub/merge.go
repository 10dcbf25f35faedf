package scrub

import (
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscrub/internal/model"
)

// CleanCategory is the result category holding numbers safe to call.
const CleanCategory = "clean"

// CategoryName maps a result archive entry such as "results/all_clean.csv" to
// its category name ("clean").
func CategoryName(entry string) string {
	name := path.Base(entry)
	if ext := path.Ext(name); strings.EqualFold(ext, ".csv") {
		name = name[:len(name)-len(ext)]
	}
	return strings.TrimPrefix(name, "all_")
}

// IsCategoryFile reports whether an archive entry is a category CSV.
func IsCategoryFile(entry string) bool {
	return strings.EqualFold(path.Ext(entry), ".csv") && !strings.HasPrefix(path.Base(entry), ".")
}

// DroppedRow describes a category row that could not be merged.
type DroppedRow struct {
	Category string
	Line     int
	Reason   string
}

// ParseCategoryRows reads rows shaped (phone, slot, nonPhoneData...) from one
// category file. nonPhoneWidth fixes the width of NonPhoneData so lead keys
// line up with the expanded input. An echoed upload header is skipped; rows
// without a usable slot are returned as dropped.
func ParseCategoryRows(category string, rows [][]string, nonPhoneWidth int) ([]model.ExpandedPhoneRecord, []DroppedRow) {
	var (
		recs    []model.ExpandedPhoneRecord
		dropped []DroppedRow
	)
	for i, row := range rows {
		if i == 0 && len(row) > 1 && strings.TrimSpace(row[1]) == "phone_order" {
			continue
		}
		if len(row) < 2 {
			dropped = append(dropped, DroppedRow{Category: category, Line: i + 1, Reason: "short row"})
			continue
		}
		slot, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			dropped = append(dropped, DroppedRow{Category: category, Line: i + 1, Reason: "unparseable slot " + strconv.Quote(row[1])})
			continue
		}
		nonPhone := make([]string, nonPhoneWidth)
		copy(nonPhone, row[2:])
		recs = append(recs, model.ExpandedPhoneRecord{
			Phone:        strings.TrimSpace(row[0]),
			Slot:         slot,
			NonPhoneData: nonPhone,
		})
	}
	return recs, dropped
}

// mergedLead is the per-lead state of a MergeBuilder.
type mergedLead struct {
	nonPhone   []string
	byCategory map[string][]string
}

// MergeBuilder re-joins categorized result rows into one row per lead, keyed
// by the tuple of non-phone cells. Each (lead, category) pair owns a phone
// slot array sized to the configured phone columns; the last write to a slot
// wins. Leads keep the order in which they were first seen. A builder is
// owned by a single job and is not safe for concurrent use.
type MergeBuilder struct {
	slots      int
	order      []string
	leads      map[string]*mergedLead
	categories map[string]struct{}
	counts     map[string]int
}

// NewMergeBuilder returns a builder for leads with the given number of phone slots.
func NewMergeBuilder(slots int) *MergeBuilder {
	return &MergeBuilder{
		slots:      slots,
		leads:      make(map[string]*mergedLead),
		categories: make(map[string]struct{}),
		counts:     make(map[string]int),
	}
}

// Seed registers leads in the order of the expanded input so the merged
// output follows the original row order.
func (b *MergeBuilder) Seed(records []model.ExpandedPhoneRecord) {
	for _, rec := range records {
		b.lead(rec.NonPhoneData)
	}
}

// AddCategory registers a category even if it has no rows.
func (b *MergeBuilder) AddCategory(category string) {
	b.categories[category] = struct{}{}
}

// Add places rec's phone at its slot for its lead in category.
func (b *MergeBuilder) Add(category string, rec model.ExpandedPhoneRecord) error {
	if rec.Slot < 0 || rec.Slot >= b.slots {
		return eris.Errorf("merge: slot %d out of range [0,%d)", rec.Slot, b.slots)
	}
	b.AddCategory(category)

	lead := b.lead(rec.NonPhoneData)
	phones, ok := lead.byCategory[category]
	if !ok {
		phones = make([]string, b.slots)
		lead.byCategory[category] = phones
	}
	phones[rec.Slot] = rec.Phone
	b.counts[category]++
	return nil
}

func (b *MergeBuilder) lead(nonPhone []string) *mergedLead {
	k := tupleKey(nonPhone)
	if l, ok := b.leads[k]; ok {
		return l
	}
	l := &mergedLead{nonPhone: nonPhone, byCategory: make(map[string][]string)}
	b.leads[k] = l
	b.order = append(b.order, k)
	return l
}

// Categories returns the category names seen so far, sorted. The sort fixes
// the merged column order across runs.
func (b *MergeBuilder) Categories() []string {
	out := make([]string, 0, len(b.categories))
	for c := range b.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of records placed in category.
func (b *MergeBuilder) Count(category string) int {
	return b.counts[category]
}

// Rows renders one row per lead: the non-phone cells followed by each sorted
// category's slot array, all-empty where the lead has no rows in a category.
func (b *MergeBuilder) Rows() [][]string {
	cats := b.Categories()
	rows := make([][]string, 0, len(b.order))
	for _, k := range b.order {
		l := b.leads[k]
		row := make([]string, 0, len(l.nonPhone)+len(cats)*b.slots)
		row = append(row, l.nonPhone...)
		for _, c := range cats {
			if phones, ok := l.byCategory[c]; ok {
				row = append(row, phones...)
			} else {
				row = append(row, make([]string, b.slots)...)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Header renders the merged header: non-phone names, then
// {category}_{phoneName} for every sorted category and phone column.
func (b *MergeBuilder) Header(nonPhoneNames, phoneNames []string) []string {
	cats := b.Categories()
	h := make([]string, 0, len(nonPhoneNames)+len(cats)*len(phoneNames))
	h = append(h, nonPhoneNames...)
	for _, c := range cats {
		for _, p := range phoneNames {
			h = append(h, c+"_"+p)
		}
	}
	return h
}

// CategoryFile is one parsed category CSV from a bulk result archive.
type CategoryFile struct {
	Category string
	Rows     [][]string
}

// Merge seeds a builder with the expanded input and folds every category
// file into it. Malformed rows are logged and skipped.
func Merge(l Layout, expanded []model.ExpandedPhoneRecord, files []CategoryFile) *MergeBuilder {
	b := NewMergeBuilder(l.Slots())
	b.Seed(expanded)

	sort.SliceStable(files, func(i, j int) bool { return files[i].Category < files[j].Category })
	for _, f := range files {
		b.AddCategory(f.Category)
		recs, dropped := ParseCategoryRows(f.Category, f.Rows, len(l.NonPhone))
		for _, d := range dropped {
			zap.L().Warn("merge: dropping category row",
				zap.String("category", d.Category),
				zap.Int("line", d.Line),
				zap.String("reason", d.Reason),
			)
		}
		for _, rec := range recs {
			if err := b.Add(f.Category, rec); err != nil {
				zap.L().Warn("merge: dropping category row",
					zap.String("category", f.Category),
					zap.String("phone", rec.Phone),
					zap.Error(err),
				)
			}
		}
	}
	return b
}
