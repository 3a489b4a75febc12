// Package importer reads lead files (CSV, XLSX, JSON) into raw rows for
// the ingest pipeline. Headers become lowercased keys; the normalizer
// downstream handles aliasing and identity derivation.
package importer

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/galzu/leadfinder/internal/lead"
)

// ReadFile dispatches on the file extension: .csv, .xlsx, .json.
func ReadFile(path string) ([]lead.RawRow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSVFile(path)
	case ".xlsx":
		return ReadXLSX(path)
	case ".json":
		return ReadJSONFile(path)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q (want .csv, .xlsx, or .json)", filepath.Ext(path))
	}
}

// ReadCSVFile reads a header-keyed CSV file into raw rows.
func ReadCSVFile(path string) ([]lead.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open csv")
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f)
}

// ReadCSV reads header-keyed CSV from a reader. The first record is the
// header; short rows are padded, long rows truncated to the header width.
func ReadCSV(r io.Reader) ([]lead.RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv header")
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	var rows []lead.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "importer: read csv row")
		}
		rows = append(rows, rowFromRecord(header, record))
	}
	return rows, nil
}

// ReadXLSX reads the first sheet of an XLSX workbook, first row as header.
func ReadXLSX(path string) ([]lead.RawRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: workbook has no sheets")
	}
	sheet := f.Sheets[0]

	var header []string
	var rows []lead.RawRow
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		if i == 0 {
			header = cells
			continue
		}
		rows = append(rows, rowFromRecord(header, cells))
	}
	return rows, nil
}

// ReadJSONFile reads a JSON array of objects into raw rows.
func ReadJSONFile(path string) ([]lead.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open json")
	}
	defer f.Close() //nolint:errcheck
	return ReadJSON(f)
}

// ReadJSON reads a JSON array of objects from a reader.
func ReadJSON(r io.Reader) ([]lead.RawRow, error) {
	var rows []lead.RawRow
	dec := json.NewDecoder(r)
	if err := dec.Decode(&rows); err != nil {
		return nil, eris.Wrap(err, "importer: decode json array")
	}
	return rows, nil
}

// rowFromRecord zips a header onto one record. Cells beyond the header
// width are dropped; missing cells stay absent rather than empty.
func rowFromRecord(header, record []string) lead.RawRow {
	row := make(lead.RawRow, len(header))
	for i, key := range header {
		if key == "" || i >= len(record) {
			continue
		}
		row[key] = record[i]
	}
	return row
}
