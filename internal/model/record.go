package model

// ExpandedPhoneRecord is one phone cut out of a lead row. Slot is the position
// of the phone among the configured phone columns and is what puts the phone
// back in its original column after the bulk round trip.
type ExpandedPhoneRecord struct {
	Phone        string   `json:"phone"`
	Slot         int      `json:"slot"`
	NonPhoneData []string `json:"nonPhoneData"`
}

// View is a rendered output: an optional header followed by rows.
type View struct {
	Header []string
	Rows   [][]string
}

// Empty reports whether the view carries no data rows.
func (v View) Empty() bool {
	return len(v.Rows) == 0
}
