package transform

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Row is one parsed CSV record keyed by header name. Line is the 1-based
// line number in the source file, header included, so error details point at
// the file the operator is looking at.
type Row struct {
	Line   int
	Fields map[string]string
}

// Parse reads a CSV document with a header line into rows. Records with the
// wrong field count are returned as per-line errors alongside the good rows,
// never as a document-level failure.
func Parse(data []byte) ([]Row, []RowError, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("csv document is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\uFEFF"))
	}

	var rows []Row
	var rowErrs []RowError
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		if len(record) != len(header) {
			rowErrs = append(rowErrs, RowError{
				Line: line,
				Err:  fmt.Errorf("expected %d fields, got %d", len(header), len(record)),
			})
			continue
		}
		fields := make(map[string]string, len(header))
		for i, name := range header {
			fields[name] = strings.TrimSpace(record[i])
		}
		rows = append(rows, Row{Line: line, Fields: fields})
	}
	return rows, rowErrs, nil
}

// RowError is a single unparseable CSV line.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Build renders a CSV document with the given header and rows.
func Build(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var sapDateLayouts = []string{
	"20060102",
	"02.01.2006",
	"2006-01-02",
}

// ParseSAPDate accepts the date spellings the ERP exports use. An empty
// string is a present-but-blank field, not an error.
func ParseSAPDate(s string) (*time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "00000000" {
		return nil, nil
	}
	for _, layout := range sapDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}

// ParseDecimal parses a decimal that may use a comma as the decimal
// separator.
func ParseDecimal(s string) (*float64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, nil
	}
	if !strings.Contains(trimmed, ".") {
		trimmed = strings.Replace(trimmed, ",", ".", 1)
	} else {
		trimmed = strings.ReplaceAll(trimmed, ",", "")
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, fmt.Errorf("unrecognized number %q", s)
	}
	return &v, nil
}

// ParseInt parses an optional integer field.
func ParseInt(s string) (*int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, fmt.Errorf("unrecognized integer %q", s)
	}
	return &v, nil
}
