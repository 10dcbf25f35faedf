package model

import (
	"fmt"
	"slices"

	"github.com/rotisserie/eris"
)

// Mode selects the reconciliation strategy for a job.
type Mode string

const (
	// ModeLookup sends deduplicated phones to the JSON lookup endpoint and
	// blanks/retains cells in memory.
	ModeLookup Mode = "lookup"
	// ModeBulk explodes rows one-per-phone, uploads a single file and merges
	// the categorized result files back into one row per lead.
	ModeBulk Mode = "bulk"
)

// LeadIdentity selects how rows are grouped into leads.
type LeadIdentity string

const (
	LeadIdentityFirstColumn     LeadIdentity = "first_column"
	LeadIdentityNonPhoneColumns LeadIdentity = "non_phone_columns"
)

// ColumnConfig is the per-job column mapping read from the document store.
type ColumnConfig struct {
	PhoneColumnIndexes []int        `json:"phoneColumnIndexes" yaml:"phoneColumnIndexes" validate:"dive,gte=0"`
	PhoneColumns       []string     `json:"phoneColumns,omitempty" yaml:"phoneColumns,omitempty"`
	HasHeaderRow       *bool        `json:"hasHeaderRow,omitempty" yaml:"hasHeaderRow,omitempty"`
	Mode               Mode         `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=lookup bulk"`
	LeadIdentity       LeadIdentity `json:"leadIdentity,omitempty" yaml:"leadIdentity,omitempty" validate:"omitempty,oneof=first_column non_phone_columns"`
}

// ColumnDefaults fill in what a stored document leaves unset.
type ColumnDefaults struct {
	HasHeaderRow bool
	Mode         Mode
	LeadIdentity LeadIdentity
}

// Columns is a validated ColumnConfig with every default applied.
type Columns struct {
	PhoneIndexes []int
	PhoneNames   []string
	HasHeader    bool
	Mode         Mode
	LeadIdentity LeadIdentity
}

// Normalize validates the document and applies defaults. Negative indices are
// rejected; repeated indices keep their first position only. Display names
// that are missing are generated as phone_1, phone_2, ...
func (c ColumnConfig) Normalize(def ColumnDefaults) (Columns, error) {
	out := Columns{
		HasHeader:    def.HasHeaderRow,
		Mode:         def.Mode,
		LeadIdentity: def.LeadIdentity,
	}
	if c.HasHeaderRow != nil {
		out.HasHeader = *c.HasHeaderRow
	}
	if c.Mode != "" {
		out.Mode = c.Mode
	}
	if c.LeadIdentity != "" {
		out.LeadIdentity = c.LeadIdentity
	}
	if out.Mode == "" {
		out.Mode = ModeLookup
	}
	if out.LeadIdentity == "" {
		out.LeadIdentity = LeadIdentityFirstColumn
	}

	for i, idx := range c.PhoneColumnIndexes {
		if idx < 0 {
			return Columns{}, eris.Errorf("model: phone column index %d is negative", idx)
		}
		if slices.Contains(out.PhoneIndexes, idx) {
			continue
		}
		out.PhoneIndexes = append(out.PhoneIndexes, idx)
		name := ""
		if i < len(c.PhoneColumns) {
			name = c.PhoneColumns[i]
		}
		if name == "" {
			name = fmt.Sprintf("phone_%d", len(out.PhoneIndexes))
		}
		out.PhoneNames = append(out.PhoneNames, name)
	}

	return out, nil
}

// IsPhone reports whether column idx is a configured phone column.
func (c Columns) IsPhone(idx int) bool {
	return slices.Contains(c.PhoneIndexes, idx)
}

// Bool returns a pointer to b, for building ColumnConfig literals.
func Bool(b bool) *bool {
	return &b
}
