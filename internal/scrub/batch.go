package scrub

import (
	"encoding/json"
	"strconv"

	"github.com/sells-group/leadscrub/internal/model"
	"github.com/sells-group/leadscrub/internal/tabular"
)

// DefaultMaxPayloadBytes is the suppression API's request size limit (1 MiB).
const DefaultMaxPayloadBytes = 1 << 20

// Sizer measures the serialized size of a batch incrementally. The size of a
// batch of n items is Base + sum(Item) + (n-1)*Sep.
type Sizer[T any] struct {
	Base int
	Sep  int
	Item func(T) int
}

// Size returns the serialized size of batch.
func (s Sizer[T]) Size(batch []T) int {
	if len(batch) == 0 {
		return s.Base
	}
	n := s.Base + (len(batch)-1)*s.Sep
	for _, it := range batch {
		n += s.Item(it)
	}
	return n
}

// Partition splits items into the fewest ordered batches whose serialized size
// stays within ceiling, filling each batch greedily in input order. An item
// that alone exceeds the ceiling is shipped as a batch of one.
func Partition[T any](items []T, ceiling int, s Sizer[T]) [][]T {
	var (
		batches [][]T
		cur     []T
		size    int
	)
	for _, it := range items {
		n := s.Item(it)
		if len(cur) > 0 && size+s.Sep+n > ceiling {
			batches = append(batches, cur)
			cur = nil
		}
		if len(cur) == 0 {
			size = s.Base + n
		} else {
			size += s.Sep + n
		}
		cur = append(cur, it)
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// lookupRequest is the JSON body of one lookup call.
type lookupRequest struct {
	Phones []string `json:"phones"`
}

// LookupSizer measures {"phones":[...]} as encoding/json renders it.
var LookupSizer = Sizer[string]{
	Base: len(`{"phones":[]}`),
	Sep:  len(","),
	Item: func(p string) int {
		b, _ := json.Marshal(p)
		return len(b)
	},
}

// LookupPayload renders the JSON body for one lookup batch.
func LookupPayload(phones []string) ([]byte, error) {
	return json.Marshal(lookupRequest{Phones: phones})
}

// PhoneBatches partitions phones into lookup requests within ceiling bytes.
func PhoneBatches(phones []string, ceiling int) [][]string {
	return Partition(phones, ceiling, LookupSizer)
}

// UploadHeader is the header of the bulk upload file.
func UploadHeader(nonPhoneNames []string) []string {
	return append([]string{"phone", "phone_order"}, nonPhoneNames...)
}

// UploadRow renders one expanded record as a bulk upload line.
func UploadRow(rec model.ExpandedPhoneRecord) []string {
	return append([]string{rec.Phone, strconv.Itoa(rec.Slot)}, rec.NonPhoneData...)
}

// UploadSizer measures a bulk upload CSV file carrying header.
func UploadSizer(header []string) Sizer[model.ExpandedPhoneRecord] {
	return Sizer[model.ExpandedPhoneRecord]{
		Base: tabular.LineSize(header),
		Item: func(rec model.ExpandedPhoneRecord) int {
			return tabular.LineSize(UploadRow(rec))
		},
	}
}

// RecordBatches partitions expanded records into upload files within ceiling
// bytes, each file repeating header.
func RecordBatches(records []model.ExpandedPhoneRecord, header []string, ceiling int) [][]model.ExpandedPhoneRecord {
	return Partition(records, ceiling, UploadSizer(header))
}

// UploadFile renders one batch of expanded records as the bulk upload CSV.
func UploadFile(header []string, batch []model.ExpandedPhoneRecord) ([]byte, error) {
	rows := make([][]string, len(batch))
	for i, rec := range batch {
		rows[i] = UploadRow(rec)
	}
	return tabular.WriteCSV(model.View{Header: header, Rows: rows})
}
