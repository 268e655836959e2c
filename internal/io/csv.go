package io

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paveg/tabula/internal/table"
)

const (
	// Boolean string constants
	trueStr  = "true"
	falseStr = "false"
)

// Read reads CSV data and returns a table. Empty cells are missing values.
func (r *CSVReader) Read() (*table.MemTable, error) {
	csvReader := r.options.newReader(r.reader)

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}

	// Handle empty CSV
	if len(records) == 0 {
		return table.EmptyTable(table.MustSchema()), nil
	}

	var headers []string
	dataRows := records
	if r.options.Header {
		headers = records[0]
		dataRows = records[1:]
	} else {
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
	}

	layout, err := r.options.layout(headers)
	if err != nil {
		return nil, err
	}

	columns := make([]table.Column, len(layout.fields))
	for i, field := range layout.fields {
		name := headers[field]
		typ, forced := r.options.Types[name]
		if !forced {
			typ = inferDataType(dataRows, field)
		}
		columns[i] = table.Column{Name: name, Type: typ}
	}
	schema, err := table.NewSchema(columns...)
	if err != nil {
		return nil, fmt.Errorf("building CSV schema: %w", err)
	}

	b := table.NewBuilder(schema, r.mem)
	defer b.Release()
	for i, record := range dataRows {
		row, err := layout.row(schema, record, int64(i))
		if err != nil {
			return nil, err
		}
		if err := b.Write(row); err != nil {
			return nil, fmt.Errorf("CSV row %d: %w", i, err)
		}
	}
	return b.Table(), nil
}

func (o CSVOptions) newReader(r io.Reader) *csv.Reader {
	csvReader := csv.NewReader(r)
	if o.Delimiter != 0 {
		csvReader.Comma = o.Delimiter
	}
	csvReader.Comment = o.Comment
	csvReader.TrimLeadingSpace = o.SkipInitialSpace
	csvReader.FieldsPerRecord = -1
	return csvReader
}

// csvLayout maps record positions to the row key and schema columns.
type csvLayout struct {
	key    int // -1 when keys are generated
	fields []int
}

func (o CSVOptions) layout(headers []string) (csvLayout, error) {
	l := csvLayout{key: -1}
	if o.RowKeyColumn != "" {
		for i, h := range headers {
			if h == o.RowKeyColumn {
				l.key = i
				break
			}
		}
		if l.key < 0 {
			return l, fmt.Errorf("row key column %q not found in CSV header", o.RowKeyColumn)
		}
	}
	for i := range headers {
		if i != l.key {
			l.fields = append(l.fields, i)
		}
	}
	return l, nil
}

func (l csvLayout) row(schema *table.Schema, record []string, offset int64) (table.Row, error) {
	key := table.DefaultRowKey(offset)
	if l.key >= 0 && l.key < len(record) && record[l.key] != "" {
		key = record[l.key]
	}
	values := make([]any, len(l.fields))
	for i, field := range l.fields {
		if field >= len(record) {
			continue
		}
		col := schema.Column(i)
		v, err := parseCell(col.Type, record[field])
		if err != nil {
			return table.Row{}, fmt.Errorf("CSV row %d column %s: %w", offset, col.Name, err)
		}
		values[i] = v
	}
	return table.Row{Key: key, Values: values}, nil
}

// inferDataType determines the most specific type for column field. Empty
// values are skipped; an all-empty column is a string column.
func inferDataType(rows [][]string, field int) table.ValueType {
	canBeInt := true
	canBeFloat := true
	canBeBool := true
	hasNonEmptyValue := false

	for _, row := range rows {
		if field >= len(row) || row[field] == "" {
			continue
		}
		value := row[field]
		hasNonEmptyValue = true

		if canBeBool {
			lower := strings.ToLower(value)
			if lower != trueStr && lower != falseStr {
				canBeBool = false
			}
		}
		if canBeInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				canBeInt = false
			}
		}
		if canBeFloat {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				canBeFloat = false
			}
		}
		if !canBeBool && !canBeInt && !canBeFloat {
			break
		}
	}

	switch {
	case !hasNonEmptyValue:
		return table.TypeString
	case canBeBool:
		return table.TypeBool
	case canBeInt:
		return table.TypeInt64
	case canBeFloat:
		return table.TypeFloat64
	}
	return table.TypeString
}

func parseCell(t table.ValueType, s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	switch t {
	case table.TypeInt64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not an integer", s)
		}
		return v, nil
	case table.TypeFloat64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", s)
		}
		return v, nil
	case table.TypeBool:
		switch {
		case strings.EqualFold(s, trueStr):
			return true, nil
		case strings.EqualFold(s, falseStr):
			return false, nil
		}
		return nil, fmt.Errorf("value %q is not a boolean", s)
	default:
		return s, nil
	}
}

// Write writes the table to CSV format
func (w *CSVWriter) Write(t *table.MemTable) error {
	rw, err := NewCSVRowWriter(w.writer, t.Schema(), w.options)
	if err != nil {
		return err
	}
	it := t.Rows()
	defer it.Close()
	for it.Next() {
		if err := rw.Write(it.Row()); err != nil {
			return err
		}
	}
	return rw.Flush()
}

// CSVRowWriter writes rows as CSV records. It implements table.Writer.
type CSVRowWriter struct {
	w       *csv.Writer
	options CSVOptions
	record  []string
	rows    int64
}

// NewCSVRowWriter creates a row writer and writes the header when enabled.
func NewCSVRowWriter(writer io.Writer, schema *table.Schema, options CSVOptions) (*CSVRowWriter, error) {
	csvWriter := csv.NewWriter(writer)
	if options.Delimiter != 0 {
		csvWriter.Comma = options.Delimiter
	}
	width := schema.Len()
	if options.RowKeyColumn != "" {
		width++
	}
	rw := &CSVRowWriter{w: csvWriter, options: options, record: make([]string, width)}

	if options.Header {
		headers := rw.record[:0]
		if options.RowKeyColumn != "" {
			headers = append(headers, options.RowKeyColumn)
		}
		headers = append(headers, schema.Names()...)
		if err := csvWriter.Write(headers); err != nil {
			return nil, fmt.Errorf("writing headers: %w", err)
		}
	}
	return rw, nil
}

// Write implements table.Writer.
func (rw *CSVRowWriter) Write(row table.Row) error {
	record := rw.record[:0]
	if rw.options.RowKeyColumn != "" {
		record = append(record, row.Key)
	}
	for _, v := range row.Values {
		record = append(record, formatCell(v))
	}
	if err := rw.w.Write(record); err != nil {
		return fmt.Errorf("writing row %d: %w", rw.rows, err)
	}
	rw.rows++
	return nil
}

// Flush writes buffered records to the underlying writer.
func (rw *CSVRowWriter) Flush() error {
	rw.w.Flush()
	if err := rw.w.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return trueStr
		}
		return falseStr
	default:
		return fmt.Sprint(val)
	}
}

// CSVSource streams CSV rows against a declared schema without reading the
// whole input. Its size is unknown and its rows can be iterated once.
type CSVSource struct {
	reader   io.Reader
	schema   *table.Schema
	options  CSVOptions
	consumed bool
}

// NewCSVSource creates a streaming source. With a header, columns are matched
// by name; without one, records map positionally onto the schema.
func NewCSVSource(reader io.Reader, schema *table.Schema, options CSVOptions) *CSVSource {
	return &CSVSource{reader: reader, schema: schema, options: options}
}

// Schema implements table.Source.
func (s *CSVSource) Schema() *table.Schema { return s.schema }

// Size implements table.Source.
func (s *CSVSource) Size() int64 { return table.UnknownSize }

// Rows implements table.Source.
func (s *CSVSource) Rows() table.Iterator {
	if s.consumed {
		return &csvIterator{err: errors.New("CSV source already consumed")}
	}
	s.consumed = true
	return &csvIterator{source: s, r: s.options.newReader(s.reader)}
}

type csvIterator struct {
	source *CSVSource
	r      *csv.Reader
	layout *csvLayout
	offset int64
	row    table.Row
	err    error
	done   bool
}

func (it *csvIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if it.layout == nil {
		if err := it.init(); err != nil {
			it.err = err
			return false
		}
	}
	record, err := it.r.Read()
	if errors.Is(err, io.EOF) {
		it.done = true
		return false
	}
	if err != nil {
		it.err = fmt.Errorf("reading CSV: %w", err)
		return false
	}
	row, err := it.layout.row(it.source.schema, record, it.offset)
	if err != nil {
		it.err = err
		return false
	}
	it.row = row
	it.offset++
	return true
}

func (it *csvIterator) init() error {
	schema := it.source.schema
	options := it.source.options
	l := csvLayout{key: -1, fields: make([]int, schema.Len())}
	if !options.Header {
		if options.RowKeyColumn != "" {
			return errors.New("row key column requires a CSV header")
		}
		for i := range l.fields {
			l.fields[i] = i
		}
		it.layout = &l
		return nil
	}

	headers, err := it.r.Read()
	if errors.Is(err, io.EOF) {
		headers = nil
	} else if err != nil {
		return fmt.Errorf("reading CSV header: %w", err)
	}
	positions := make(map[string]int, len(headers))
	for i, h := range headers {
		positions[h] = i
	}
	if options.RowKeyColumn != "" {
		pos, ok := positions[options.RowKeyColumn]
		if !ok {
			return fmt.Errorf("row key column %q not found in CSV header", options.RowKeyColumn)
		}
		l.key = pos
	}
	for i, name := range schema.Names() {
		pos, ok := positions[name]
		if !ok {
			return fmt.Errorf("column %q not found in CSV header", name)
		}
		l.fields[i] = pos
	}
	it.layout = &l
	return nil
}

func (it *csvIterator) Row() table.Row { return it.row }
func (it *csvIterator) Err() error     { return it.err }
func (it *csvIterator) Close() error {
	it.done = true
	return nil
}
