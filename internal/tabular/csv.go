// Package tabular decodes uploaded lead lists (CSV, XLSX), unpacks ZIP result
// archives and renders rows back to CSV.
package tabular

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscrub/internal/model"
)

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
}

// ReadCSV parses every record in r. Rows may have differing widths.
func ReadCSV(r io.Reader, opts CSVOptions) ([][]string, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, eris.Wrap(err, "csv: read row")
		}
		rows = append(rows, record)
	}
}

// WriteCSV renders a view with a single csv.Writer: comma delimited, fields
// containing the delimiter, a quote or a newline are quoted. When the view has
// a header every row must have exactly the header's width; callers pad.
func WriteCSV(v model.View) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if v.Header != nil {
		if err := w.Write(v.Header); err != nil {
			return nil, eris.Wrap(err, "csv: write header")
		}
	}
	for i, row := range v.Rows {
		if v.Header != nil && len(row) != len(v.Header) {
			return nil, eris.Errorf("csv: row %d has %d columns, header has %d", i, len(row), len(v.Header))
		}
		if err := w.Write(row); err != nil {
			return nil, eris.Wrapf(err, "csv: write row %d", i)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "csv: flush")
	}
	return buf.Bytes(), nil
}

// LineSize returns the number of bytes record occupies when rendered as one
// CSV line, terminator included.
func LineSize(record []string) int {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(record)
	w.Flush()
	return buf.Len()
}
