package scrub

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscrub/internal/model"
	"github.com/sells-group/leadscrub/internal/tabular"
)

func TestCategoryName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		entry string
		want  string
	}{
		{"all_clean.csv", "clean"},
		{"results/federal_dnc.csv", "federal_dnc"},
		{"invalid.CSV", "invalid"},
		{"wireless", "wireless"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoryName(tt.entry), tt.entry)
	}
}

func TestIsCategoryFile(t *testing.T) {
	t.Parallel()
	assert.True(t, IsCategoryFile("x/all_clean.csv"))
	assert.False(t, IsCategoryFile("readme.txt"))
	assert.False(t, IsCategoryFile("__MACOSX/._all_clean.csv"))
}

func TestParseCategoryRows(t *testing.T) {
	t.Parallel()
	rows := [][]string{
		{"phone", "phone_order", "lead", "email"},
		{"555-1111", "0", "L1", "a@x.com"},
		{"555-2222", "x", "L1", "a@x.com"},
		{"555-3333"},
		{" 555-4444 ", " 1 ", "L2"},
	}
	recs, dropped := ParseCategoryRows("clean", rows, 2)

	require.Len(t, recs, 2)
	assert.Equal(t, model.ExpandedPhoneRecord{Phone: "555-1111", Slot: 0, NonPhoneData: []string{"L1", "a@x.com"}}, recs[0])
	assert.Equal(t, model.ExpandedPhoneRecord{Phone: "555-4444", Slot: 1, NonPhoneData: []string{"L2", ""}}, recs[1])

	require.Len(t, dropped, 2)
	assert.Equal(t, 3, dropped[0].Line)
	assert.Equal(t, 4, dropped[1].Line)
}

func TestMerge_Scenario(t *testing.T) {
	t.Parallel()
	header := []string{"lead", "email", "p1", "p2"}
	rows := [][]string{{"L1", "a@x.com", "555-1111", "555-2222"}}
	l := layoutFor(t, []int{2, 3}, header, rows)
	expanded := Expand(rows, l)

	b := Merge(l, expanded, []CategoryFile{
		{Category: "federal_dnc", Rows: [][]string{{"555-2222", "1", "L1", "a@x.com"}}},
		{Category: "clean", Rows: [][]string{{"555-1111", "0", "L1", "a@x.com"}}},
	})

	assert.Equal(t, []string{"clean", "federal_dnc"}, b.Categories())
	assert.Equal(t,
		[]string{"lead", "email", "clean_p1", "clean_p2", "federal_dnc_p1", "federal_dnc_p2"},
		b.Header(l.NonPhoneNames(header), []string{"p1", "p2"}),
	)
	assert.Equal(t, [][]string{{"L1", "a@x.com", "555-1111", "", "", "555-2222"}}, b.Rows())
	assert.Equal(t, 1, b.Count(CleanCategory))
}

func TestMerge_MalformedSlotDropped(t *testing.T) {
	t.Parallel()
	rows := [][]string{{"L1", "555-1111", "555-2222"}}
	l := layoutFor(t, []int{1, 2}, nil, rows)

	b := Merge(l, Expand(rows, l), []CategoryFile{
		{Category: "clean", Rows: [][]string{
			{"555-1111", "zero", "L1"},
			{"555-1111", "9", "L1"},
			{"555-2222", "1", "L1"},
		}},
	})

	assert.Equal(t, [][]string{{"L1", "", "555-2222"}}, b.Rows())
}

func TestMerge_EmptyCategoryStillAddsColumns(t *testing.T) {
	t.Parallel()
	rows := [][]string{{"L1", "555-1111"}}
	l := layoutFor(t, []int{1}, nil, rows)

	b := Merge(l, Expand(rows, l), []CategoryFile{
		{Category: "invalid", Rows: [][]string{{"phone", "phone_order", "column_1"}}},
		{Category: "clean", Rows: [][]string{{"555-1111", "0", "L1"}}},
	})

	assert.Equal(t, []string{"clean", "invalid"}, b.Categories())
	assert.Equal(t, [][]string{{"L1", "555-1111", ""}}, b.Rows())
}

func TestMerge_RowOrderFollowsInput(t *testing.T) {
	t.Parallel()
	rows := [][]string{
		{"L2", "555-0002"},
		{"L1", "555-0001"},
	}
	l := layoutFor(t, []int{1}, nil, rows)

	b := Merge(l, Expand(rows, l), []CategoryFile{
		{Category: "clean", Rows: [][]string{
			{"555-0001", "0", "L1"},
			{"555-0009", "0", "L9"},
			{"555-0002", "0", "L2"},
		}},
	})

	assert.Equal(t, [][]string{
		{"L2", "555-0002"},
		{"L1", "555-0001"},
		{"L9", "555-0009"},
	}, b.Rows())
}

func TestMergeBuilder_LastWriterWinsPerSlot(t *testing.T) {
	t.Parallel()
	b := NewMergeBuilder(2)
	lead := []string{"L1"}
	require.NoError(t, b.Add("clean", model.ExpandedPhoneRecord{Phone: "a", Slot: 0, NonPhoneData: lead}))
	require.NoError(t, b.Add("clean", model.ExpandedPhoneRecord{Phone: "b", Slot: 1, NonPhoneData: lead}))
	require.NoError(t, b.Add("clean", model.ExpandedPhoneRecord{Phone: "c", Slot: 0, NonPhoneData: lead}))

	assert.Equal(t, [][]string{{"L1", "c", "b"}}, b.Rows())
	assert.Error(t, b.Add("clean", model.ExpandedPhoneRecord{Phone: "d", Slot: -1, NonPhoneData: lead}))
}

func TestMerge_MultilineCellSurvivesUploadRoundTrip(t *testing.T) {
	t.Parallel()
	rows := [][]string{{"line1\r\nline2", "555-1111", "555-2222"}}
	l := layoutFor(t, []int{1, 2}, nil, rows)

	expanded := Expand(rows, l)
	header := UploadHeader(l.NonPhoneNames(nil))
	file, err := UploadFile(header, expanded)
	require.NoError(t, err)

	// The service echoes the upload back as its clean category.
	back, err := tabular.ReadCSV(bytes.NewReader(file), tabular.CSVOptions{})
	require.NoError(t, err)

	b := Merge(l, expanded, []CategoryFile{{Category: CleanCategory, Rows: back}})
	assert.Equal(t, [][]string{{"line1\nline2", "555-1111", "555-2222"}}, b.Rows())
	assert.Equal(t, 2, b.Count(CleanCategory))
}
