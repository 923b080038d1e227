package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one import record keyed by normalized header.
type Row map[string]string

// ErrUnreadableInput is returned for files that cannot be parsed at all.
var ErrUnreadableInput = errors.New("import input could not be read")

// NormalizeHeader makes "Item Code", "item-code" and "ITEM_CODE" the same key.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

// ReadRows picks a reader by file extension.
func ReadRows(filename string, r io.Reader) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return ReadRowsXLSX(r)
	case ".csv":
		return ReadRowsCSV(r)
	}
	return nil, fmt.Errorf("%w: unsupported file type %q, use .xlsx or .csv", ErrUnreadableInput, filepath.Ext(filename))
}

// ReadRowsXLSX reads the first sheet. The first row is the header; blank
// rows are kept so row numbers match the sheet.
func ReadRowsXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableInput)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read sheet %s: %v", ErrUnreadableInput, sheets[0], err)
	}
	return toRows(records)
}

// ReadRowsCSV reads comma-separated records with a header line.
func ReadRowsCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	return toRows(records)
}

func toRows(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrUnreadableInput)
	}
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = NormalizeHeader(h)
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := Row{}
		for i, value := range record {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			if _, seen := row[headers[i]]; seen {
				continue
			}
			row[headers[i]] = strings.TrimSpace(value)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
