package tabular

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestFormatOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, FormatXLSX, FormatOf("leads.XLSX"))
	assert.Equal(t, FormatXLSX, FormatOf("uploads/leads.xlsm"))
	assert.Equal(t, FormatCSV, FormatOf("leads.csv"))
	assert.Equal(t, FormatCSV, FormatOf("leads"))
}

func TestDecodeText_PlainUTF8Unchanged(t *testing.T) {
	t.Parallel()
	in := []byte("id,name\n1,José\n")
	out, err := DecodeText(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeText_StripsUTF8BOM(t *testing.T) {
	t.Parallel()
	out, err := DecodeText(append([]byte{0xEF, 0xBB, 0xBF}, "id\n1\n"...))
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(out))
}

func TestDecodeText_UTF16LE(t *testing.T) {
	t.Parallel()
	// "a,b\n" in UTF-16LE with BOM.
	in := []byte{0xFF, 0xFE, 'a', 0, ',', 0, 'b', 0, '\n', 0}
	out, err := DecodeText(in)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(out))
}

func TestParse_CSVWithBOM(t *testing.T) {
	t.Parallel()
	rows, err := Parse("leads.csv", append([]byte{0xEF, 0xBB, 0xBF}, "id,phone\n1,555\n"...))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "phone"}, {"1", "555"}}, rows)
}

func createTestXLSX(t *testing.T, sheets ...[][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for i, rows := range sheets {
		sheet, err := f.AddSheet("Sheet" + string(rune('1'+i)))
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParse_XLSXFirstSheet(t *testing.T) {
	t.Parallel()
	data := createTestXLSX(t,
		[][]string{{"id", "phone"}, {"1", "555-1111"}},
		[][]string{{"other"}},
	)
	rows, err := Parse("leads.xlsx", data)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "phone"}, {"1", "555-1111"}}, rows)
}

func TestReadXLSX_SheetByName(t *testing.T) {
	t.Parallel()
	data := createTestXLSX(t, [][]string{{"a"}}, [][]string{{"b"}})

	rows, err := ReadXLSX(data, XLSXOptions{SheetName: "Sheet2"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"b"}}, rows)

	_, err = ReadXLSX(data, XLSXOptions{SheetName: "missing"})
	assert.Error(t, err)
	_, err = ReadXLSX(data, XLSXOptions{SheetIndex: 5})
	assert.Error(t, err)
}

func TestReadXLSX_NotAWorkbook(t *testing.T) {
	t.Parallel()
	_, err := ReadXLSX([]byte("id,phone\n"), XLSXOptions{})
	assert.Error(t, err)
}

func createTestZIP(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestUnpackZIP_SortedEntries(t *testing.T) {
	t.Parallel()
	data := createTestZIP(t, map[string]string{
		"results/invalid.csv": "555-2222,0\n",
		"all_clean.csv":       "555-1111,0\n",
		"results/":            "",
	})

	entries, err := UnpackZIP(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "all_clean.csv", entries[0].Name)
	assert.Equal(t, "555-1111,0\n", string(entries[0].Data))
	assert.Equal(t, "results/invalid.csv", entries[1].Name)
}

func TestUnpackZIP_RejectsTraversal(t *testing.T) {
	t.Parallel()
	data := createTestZIP(t, map[string]string{"../evil.csv": "x"})
	_, err := UnpackZIP(data)
	assert.Error(t, err)
}

func TestUnpackZIP_NotAZip(t *testing.T) {
	t.Parallel()
	_, err := UnpackZIP([]byte("not a zip"))
	assert.Error(t, err)
}
