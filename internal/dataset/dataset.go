// Package dataset parses delimited text into the tabular datasets that
// experiments iterate over.
package dataset

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/timvw/promptbench/internal/model"
)

// ParseError wraps a CSV syntax failure (unterminated quote, stray quote
// inside an unquoted field).
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse reads comma-separated text into a column list and row mappings.
//
// The first row is the header. Double-quoted fields may embed commas,
// doubled quotes, and newlines; CRLF line endings are accepted. All values
// are strings, with no type inference. Rows shorter than the header fill the
// missing columns with ""; cells beyond the header are dropped. Field
// whitespace is trimmed. Blank input yields empty columns and rows.
func Parse(text string) (columns []string, rows []map[string]string, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, nil
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, &ParseError{Err: err}
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	columns = make([]string, len(records[0]))
	for i, c := range records[0] {
		columns[i] = strings.TrimSpace(c)
	}

	rows = make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

// New parses text and wraps the result in a named Dataset with a fresh id.
func New(name, text string) (model.Dataset, error) {
	columns, rows, err := Parse(text)
	if err != nil {
		return model.Dataset{}, err
	}
	return model.Dataset{
		ID:      model.NewID(),
		Name:    name,
		Columns: columns,
		Data:    rows,
	}, nil
}
