package table

import (
	"fmt"
)

// UnknownSize is returned by Source.Size when the row count is not known up front.
const UnknownSize int64 = -1

// Row is one table row. Values are indexed by column ordinal and hold string,
// int64, float64 or bool; a nil value is a missing cell. Row keys are never missing.
type Row struct {
	Key    string
	Values []any
}

// Value returns the cell at column i, nil when missing.
func (r Row) Value(i int) any { return r.Values[i] }

// IsMissing reports whether the cell at column i is missing.
func (r Row) IsMissing(i int) bool { return r.Values[i] == nil }

// DefaultRowKey is the key assigned to generated rows, e.g. "Row0".
func DefaultRowKey(offset int64) string {
	return fmt.Sprintf("Row%d", offset)
}

// Iterator walks rows in order. Next must be called before the first Row.
type Iterator interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// Source is a sequential row source.
type Source interface {
	Schema() *Schema
	// Size returns the row count or UnknownSize.
	Size() int64
	Rows() Iterator
}

// Slicer is a source supporting zero-copy extraction of row ranges.
type Slicer interface {
	Source
	// Slice returns rows at offsets [lo, hi).
	Slice(lo, hi int64) *MemTable
}

// Writer is a sequential row sink.
type Writer interface {
	Write(row Row) error
}

// RowSource is a Source over an in-memory row slice. It can hide its size to
// model a streaming upstream.
type RowSource struct {
	schema *Schema
	rows   []Row
	sized  bool
}

// NewRowSource creates a source over rows. When sized is false, Size reports UnknownSize.
func NewRowSource(schema *Schema, rows []Row, sized bool) *RowSource {
	return &RowSource{schema: schema, rows: rows, sized: sized}
}

// Schema implements Source.
func (s *RowSource) Schema() *Schema { return s.schema }

// Size implements Source.
func (s *RowSource) Size() int64 {
	if !s.sized {
		return UnknownSize
	}
	return int64(len(s.rows))
}

// Rows implements Source.
func (s *RowSource) Rows() Iterator {
	return &sliceIterator{rows: s.rows, pos: -1}
}

type sliceIterator struct {
	rows []Row
	pos  int
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.rows) {
		it.pos = len(it.rows)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Row() Row     { return it.rows[it.pos] }
func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }

// RowCollector is a Writer keeping every row in memory.
type RowCollector struct {
	Rows []Row
}

// Write implements Writer.
func (c *RowCollector) Write(row Row) error {
	c.Rows = append(c.Rows, row)
	return nil
}

// Discard is a Writer dropping every row.
var Discard Writer = discard{}

type discard struct{}

func (discard) Write(Row) error { return nil }
