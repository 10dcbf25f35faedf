package scrub

import (
	"github.com/sells-group/leadscrub/internal/model"
)

// BlankRetain splits the input into a clean view, where every suppressed
// phone cell is blanked, and a blacklisted view, where every non-suppressed
// phone cell is blanked and rows are merged per lead.
//
// Blacklisted rows are grouped by key. The first row of a lead supplies its
// non-phone cells; later rows only fill phone columns that are still empty
// (first writer wins). Leads without any suppressed phone produce no
// blacklisted row. With a header, both views are padded to a common width.
func BlankRetain(header []string, rows [][]string, l Layout, suppressed *SuppressedSet, key LeadKeyFunc) (clean, blacklisted model.View) {
	width := 0
	if header != nil {
		width = l.Width
		header = pad(header, width)
	}

	clean = model.View{Header: header, Rows: make([][]string, 0, len(rows))}
	blacklisted = model.View{Header: header}

	byLead := make(map[string]int)
	for _, row := range rows {
		cleanRow := pad(row, width)
		blRow := pad(row, width)
		hit := false

		for _, col := range l.Phone {
			if col >= len(row) {
				continue
			}
			phone, _ := NormalizePhone(row[col])
			if phone != "" && suppressed.Has(phone) {
				cleanRow[col] = ""
				blRow[col] = phone
				hit = true
			} else {
				blRow[col] = ""
			}
		}
		clean.Rows = append(clean.Rows, cleanRow)

		if !hit {
			continue
		}
		k := key(row)
		i, seen := byLead[k]
		if !seen {
			byLead[k] = len(blacklisted.Rows)
			blacklisted.Rows = append(blacklisted.Rows, blRow)
			continue
		}
		blacklisted.Rows[i] = fillEmpty(blacklisted.Rows[i], blRow, l.Phone)
	}

	return clean, blacklisted
}

// fillEmpty copies phone cells from src into dst where dst is still empty,
// growing dst when src is wider.
func fillEmpty(dst, src []string, phoneCols []int) []string {
	for _, col := range phoneCols {
		if col >= len(src) || src[col] == "" {
			continue
		}
		if col >= len(dst) {
			dst = pad(dst, col+1)
		}
		if dst[col] == "" {
			dst[col] = src[col]
		}
	}
	return dst
}

// pad returns a copy of row extended with empty cells to at least width.
func pad(row []string, width int) []string {
	out := make([]string, max(len(row), width))
	copy(out, row)
	return out
}
