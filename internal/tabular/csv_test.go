package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscrub/internal/model"
)

func TestReadCSV_RaggedRows(t *testing.T) {
	t.Parallel()
	rows, err := ReadCSV(strings.NewReader("a,b,c\n1,2\n3\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"1", "2"}, {"3"}}, rows)
}

func TestReadCSV_PipeDelimited(t *testing.T) {
	t.Parallel()
	rows, err := ReadCSV(strings.NewReader("a|b\n1|2\n"), CSVOptions{Delimiter: '|'})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestReadCSV_BadQuote(t *testing.T) {
	t.Parallel()
	_, err := ReadCSV(strings.NewReader("a,\"b\n"), CSVOptions{})
	assert.Error(t, err)
}

func TestWriteCSV_Quoting(t *testing.T) {
	t.Parallel()
	out, err := WriteCSV(model.View{
		Header: []string{"id", "note"},
		Rows: [][]string{
			{"1", "has,comma"},
			{"2", `has "quote"`},
			{"3", "multi\nline"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "id,note\n1,\"has,comma\"\n2,\"has \"\"quote\"\"\"\n3,\"multi\nline\"\n", string(out))
}

func TestWriteCSV_WidthMismatch(t *testing.T) {
	t.Parallel()
	_, err := WriteCSV(model.View{Header: []string{"a", "b"}, Rows: [][]string{{"1"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0 has 1 columns, header has 2")
}

func TestWriteCSV_NoHeaderAllowsRagged(t *testing.T) {
	t.Parallel()
	out, err := WriteCSV(model.View{Rows: [][]string{{"1", "2"}, {"3"}}})
	require.NoError(t, err)
	assert.Equal(t, "1,2\n3\n", string(out))
}

func TestWriteCSV_RoundTripAndIdempotent(t *testing.T) {
	t.Parallel()
	v := model.View{
		Header: []string{"lead", "email", "phone"},
		Rows: [][]string{
			{"L1", "a@x.com", "555-1111"},
			{"L,2", `q"uote`, ""},
			{"L3", "line\nbreak", " spaced "},
		},
	}
	first, err := WriteCSV(v)
	require.NoError(t, err)
	second, err := WriteCSV(v)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	rows, err := ReadCSV(bytes.NewReader(first), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, append([][]string{v.Header}, v.Rows...), rows)
}

func TestLineSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, len("a,b\n"), LineSize([]string{"a", "b"}))
	assert.Equal(t, len("\"a,b\",c\n"), LineSize([]string{"a,b", "c"}))
}
