package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/workforce-capacity/internal/tabular"
)

// Source names a raw extract on disk
type Source struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Path string `json:"path" yaml:"path" validate:"required"`
}

// ReadCSV reads a CSV file into a raw table named after the file stem
func ReadCSV(path string) (*tabular.Table, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ReadSource(Source{Name: name, Path: path})
}

// ReadSource reads the CSV file behind src into a raw table named src.Name
func ReadSource(src Source) (*tabular.Table, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, &ReadError{Message: fmt.Sprintf("failed to open %s", src.Path), Cause: err}
	}
	defer func() { _ = f.Close() }()

	return ReadCSVFrom(src.Name, f)
}

// ReadCSVFrom decodes CSV from r. The first record is the header; header
// casing is preserved so the cleaner's column mapping sees the raw names.
// Every column is a string column and empty cells are null.
func ReadCSVFrom(name string, r io.Reader) (*tabular.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &HeaderError{Table: name, Message: "file is empty"}
	}
	if err != nil {
		return nil, &ReadError{Message: fmt.Sprintf("failed to read header of %s", name), Cause: err}
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ReadError{Message: fmt.Sprintf("failed to read %s", name), Cause: err}
		}
		// Quoted fields may span lines, so the record index is not the line
		if len(rec) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, &ReadError{Message: fmt.Sprintf("%s line %d has %d fields, header has %d", name, line, len(rec), len(header))}
		}
		records = append(records, rec)
	}

	return FromRecords(name, header, records)
}

// FromRecords builds a raw table from a header and string records. Short
// records are padded with nulls; long records are rejected.
func FromRecords(name string, header []string, records [][]string) (*tabular.Table, error) {
	cols := make([]tabular.Column, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			return nil, &HeaderError{Table: name, Message: fmt.Sprintf("column %d has an empty name", i)}
		}
		cols[i] = tabular.Column{Name: h, Kind: tabular.KindString}
	}

	tbl, err := tabular.New(name, cols)
	if err != nil {
		return nil, &HeaderError{Table: name, Message: err.Error()}
	}

	rows := make([]tabular.Row, 0, len(records))
	for i, rec := range records {
		if len(rec) > len(cols) {
			return nil, &ReadError{Message: fmt.Sprintf("%s record %d has %d fields, header has %d", name, i+1, len(rec), len(cols))}
		}
		row := make(tabular.Row, len(cols))
		for j, cell := range rec {
			if strings.TrimSpace(cell) != "" {
				row[j] = cell
			}
		}
		rows = append(rows, row)
	}
	return tbl.Append(rows...)
}
