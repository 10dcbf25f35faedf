package tabular

import (
	"bytes"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Format is the container format of an uploaded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatOf picks the format from the file extension. Anything that is not an
// Excel workbook is treated as CSV.
func FormatOf(fileName string) Format {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// DecodeText returns data as UTF-8 text. A UTF-8 or UTF-16 byte order mark
// selects the source encoding and is dropped; without one the input is read
// as UTF-8 and invalid sequences become U+FFFD.
func DecodeText(data []byte) ([]byte, error) {
	if !hasBOM(data) && utf8.Valid(data) {
		return data, nil
	}
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return nil, eris.Wrap(err, "decode: transform")
	}
	return out, nil
}

func hasBOM(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) ||
		bytes.HasPrefix(data, []byte{0xFE, 0xFF}) ||
		bytes.HasPrefix(data, []byte{0xFF, 0xFE})
}

// Parse decodes an uploaded file into rows.
func Parse(fileName string, data []byte) ([][]string, error) {
	if FormatOf(fileName) == FormatXLSX {
		return ReadXLSX(data, XLSXOptions{})
	}
	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}
	return ReadCSV(bytes.NewReader(text), CSVOptions{LazyQuotes: true})
}
