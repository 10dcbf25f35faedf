// Package scrub extracts phone numbers from lead rows, partitions them into
// size-bounded API requests and reconciles suppression results back into
// per-lead output rows.
package scrub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/leadscrub/internal/model"
)

// Layout resolves the configured phone columns against one concrete file.
type Layout struct {
	// Phone lists the configured phone column indices in configuration order.
	// Indices beyond a row's width are skipped for that row.
	Phone []int
	// NonPhone lists every other column index below Width, ascending.
	NonPhone []int
	// Width is the widest of the header and all data rows.
	Width int
}

// NewLayout derives a Layout from validated columns and the parsed file.
func NewLayout(cols model.Columns, header []string, rows [][]string) Layout {
	width := len(header)
	for _, row := range rows {
		width = max(width, len(row))
	}

	l := Layout{Phone: cols.PhoneIndexes, Width: width}
	for i := range width {
		if !cols.IsPhone(i) {
			l.NonPhone = append(l.NonPhone, i)
		}
	}
	return l
}

// Slots is the number of configured phone columns.
func (l Layout) Slots() int {
	return len(l.Phone)
}

// NonPhoneValues returns row's non-phone cells; missing cells read as "".
// Line breaks are canonicalised to "\n" so the values match what a CSV
// reader returns for the same cells after an upload round trip.
func (l Layout) NonPhoneValues(row []string) []string {
	out := make([]string, len(l.NonPhone))
	for i, idx := range l.NonPhone {
		if idx < len(row) {
			out[i] = canonicalCell(row[idx])
		}
	}
	return out
}

// canonicalCell folds "\r\n" into "\n", as encoding/csv does inside quoted
// fields.
func canonicalCell(c string) string {
	if !strings.Contains(c, "\r\n") {
		return c
	}
	return strings.ReplaceAll(c, "\r\n", "\n")
}

// NonPhoneNames returns header names for the non-phone columns, generating
// column_<n> (1-based) where the header is missing or short.
func (l Layout) NonPhoneNames(header []string) []string {
	out := make([]string, len(l.NonPhone))
	for i, idx := range l.NonPhone {
		if idx < len(header) && header[idx] != "" {
			out[i] = header[idx]
			continue
		}
		out[i] = fmt.Sprintf("column_%d", idx+1)
	}
	return out
}

// LeadKeyFunc derives the lead identity of a row.
type LeadKeyFunc func(row []string) string

// FirstColumnKey identifies a lead by its first cell.
func FirstColumnKey(row []string) string {
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

// NonPhoneKey identifies a lead by the tuple of all its non-phone cells.
func (l Layout) NonPhoneKey(row []string) string {
	return tupleKey(l.NonPhoneValues(row))
}

// KeyFunc returns the lead identity strategy selected by id.
func (l Layout) KeyFunc(id model.LeadIdentity) LeadKeyFunc {
	if id == model.LeadIdentityNonPhoneColumns {
		return l.NonPhoneKey
	}
	return FirstColumnKey
}

// tupleKey encodes cells as an unambiguous map key.
func tupleKey(cells []string) string {
	var b strings.Builder
	for _, c := range cells {
		b.WriteString(strconv.Itoa(len(c)))
		b.WriteByte(':')
		b.WriteString(c)
	}
	return b.String()
}
