package table

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// DefaultBatchRows is the number of rows a Builder buffers per Arrow record.
const DefaultBatchRows = 4096

// MemTable is an immutable, random-access table stored as a sequence of Arrow
// records. Column 0 of every record holds the row keys.
type MemTable struct {
	schema  *Schema
	records []arrow.Record
	starts  []int64 // offset of the first row of each record
	size    int64
}

// NewMemTable creates a table over records laid out as described by
// Schema.ArrowSchema. The table takes ownership of the records.
func NewMemTable(schema *Schema, records ...arrow.Record) *MemTable {
	t := &MemTable{schema: schema}
	for _, rec := range records {
		if rec.NumRows() == 0 {
			rec.Release()
			continue
		}
		t.starts = append(t.starts, t.size)
		t.records = append(t.records, rec)
		t.size += rec.NumRows()
	}
	return t
}

// EmptyTable returns a table with no rows.
func EmptyTable(schema *Schema) *MemTable {
	return &MemTable{schema: schema}
}

// Schema implements Source.
func (t *MemTable) Schema() *Schema { return t.schema }

// Size implements Source. A MemTable always knows its size.
func (t *MemTable) Size() int64 { return t.size }

// Records returns the underlying records. They stay owned by the table.
func (t *MemTable) Records() []arrow.Record { return t.records }

// Release releases the underlying Arrow memory
func (t *MemTable) Release() {
	for _, rec := range t.records {
		rec.Release()
	}
	t.records = nil
	t.starts = nil
	t.size = 0
}

// RowAt returns the row at offset i.
func (t *MemTable) RowAt(i int64) Row {
	r := sort.Search(len(t.starts), func(k int) bool { return t.starts[k] > i }) - 1
	return rowFromRecord(t.records[r], int(i-t.starts[r]))
}

// Slice implements Slicer. The result shares memory with t.
func (t *MemTable) Slice(lo, hi int64) *MemTable {
	if lo < 0 {
		lo = 0
	}
	if hi > t.size {
		hi = t.size
	}
	out := &MemTable{schema: t.schema}
	if lo >= hi {
		return out
	}
	for k, rec := range t.records {
		start := t.starts[k]
		end := start + rec.NumRows()
		if end <= lo || start >= hi {
			continue
		}
		from := max(lo, start) - start
		to := min(hi, end) - start
		out.starts = append(out.starts, out.size)
		out.records = append(out.records, rec.NewSlice(from, to))
		out.size += to - from
	}
	return out
}

// Rows implements Source.
func (t *MemTable) Rows() Iterator {
	return &memIterator{table: t, pos: -1}
}

// Collect returns all rows. Intended for tests and small tables.
func (t *MemTable) Collect() []Row {
	rows := make([]Row, 0, t.size)
	for _, rec := range t.records {
		for i := 0; i < int(rec.NumRows()); i++ {
			rows = append(rows, rowFromRecord(rec, i))
		}
	}
	return rows
}

// Keys returns the row keys in order.
func (t *MemTable) Keys() []string {
	keys := make([]string, 0, t.size)
	for _, rec := range t.records {
		col := rec.Column(0).(*array.String)
		for i := 0; i < col.Len(); i++ {
			keys = append(keys, col.Value(i))
		}
	}
	return keys
}

func (t *MemTable) String() string {
	return fmt.Sprintf("MemTable[%dx%d]", t.size, t.schema.Len())
}

// Concat joins tables sharing schema in order without copying.
func Concat(schema *Schema, parts ...*MemTable) *MemTable {
	out := &MemTable{schema: schema}
	for _, p := range parts {
		for _, rec := range p.records {
			rec.Retain()
			out.starts = append(out.starts, out.size)
			out.records = append(out.records, rec)
			out.size += rec.NumRows()
		}
	}
	return out
}

type memIterator struct {
	table *MemTable
	rec   int
	pos   int
}

func (it *memIterator) Next() bool {
	for it.rec < len(it.table.records) {
		if it.pos+1 < int(it.table.records[it.rec].NumRows()) {
			it.pos++
			return true
		}
		it.rec++
		it.pos = -1
	}
	return false
}

func (it *memIterator) Row() Row {
	return rowFromRecord(it.table.records[it.rec], it.pos)
}

func (it *memIterator) Err() error   { return nil }
func (it *memIterator) Close() error { return nil }

func rowFromRecord(rec arrow.Record, i int) Row {
	n := int(rec.NumCols())
	values := make([]any, n-1)
	for c := 1; c < n; c++ {
		values[c-1] = CellValue(rec.Column(c), i)
	}
	return Row{
		Key:    rec.Column(0).(*array.String).Value(i),
		Values: values,
	}
}

// CellValue reads the value at index i of arr, nil when null.
func CellValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Boolean:
		return a.Value(i)
	}
	return nil
}

// Builder accumulates rows into a MemTable. It implements Writer.
type Builder struct {
	schema    *Schema
	mem       memory.Allocator
	rb        *array.RecordBuilder
	pending   int
	batchRows int
	parts     []arrow.Record
}

// NewBuilder creates a builder for schema. A nil allocator uses the Go allocator.
func NewBuilder(schema *Schema, mem memory.Allocator) *Builder {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Builder{
		schema:    schema,
		mem:       mem,
		rb:        array.NewRecordBuilder(mem, schema.ArrowSchema()),
		batchRows: DefaultBatchRows,
	}
}

// Write implements Writer. Values must already have the Go type of their column.
func (b *Builder) Write(row Row) error {
	if len(row.Values) != b.schema.Len() {
		return fmt.Errorf("row %s has %d values, schema has %d columns", row.Key, len(row.Values), b.schema.Len())
	}
	b.rb.Field(0).(*array.StringBuilder).Append(row.Key)
	for i, v := range row.Values {
		if err := AppendValue(b.rb.Field(i+1), b.schema.Column(i), v); err != nil {
			return err
		}
	}
	b.pending++
	if b.pending >= b.batchRows {
		b.flush()
	}
	return nil
}

// WriteTable appends all rows of t without copying them.
func (b *Builder) WriteTable(t *MemTable) {
	b.flush()
	for _, rec := range t.records {
		rec.Retain()
		b.parts = append(b.parts, rec)
	}
}

// Len returns the number of rows written so far.
func (b *Builder) Len() int64 {
	n := int64(b.pending)
	for _, rec := range b.parts {
		n += rec.NumRows()
	}
	return n
}

// Table returns the rows written so far as a MemTable and resets the builder.
func (b *Builder) Table() *MemTable {
	b.flush()
	parts := b.parts
	b.parts = nil
	return NewMemTable(b.schema, parts...)
}

// Release releases buffered memory not yet handed out by Table.
func (b *Builder) Release() {
	for _, rec := range b.parts {
		rec.Release()
	}
	b.parts = nil
	b.rb.Release()
}

func (b *Builder) flush() {
	if b.pending == 0 {
		return
	}
	b.parts = append(b.parts, b.rb.NewRecord())
	b.pending = 0
}

// AppendValue appends v, which must have the Go type of col, to fb. nil appends a null.
func AppendValue(fb array.Builder, col Column, v any) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}
	ok := false
	switch col.Type {
	case TypeString:
		var s string
		if s, ok = v.(string); ok {
			fb.(*array.StringBuilder).Append(s)
		}
	case TypeInt64:
		var n int64
		if n, ok = v.(int64); ok {
			fb.(*array.Int64Builder).Append(n)
		}
	case TypeFloat64:
		var f float64
		if f, ok = v.(float64); ok {
			fb.(*array.Float64Builder).Append(f)
		}
	case TypeBool:
		var bv bool
		if bv, ok = v.(bool); ok {
			fb.(*array.BooleanBuilder).Append(bv)
		}
	}
	if !ok {
		return fmt.Errorf("column %s expects %s, got %T", col.Name, col.Type, v)
	}
	return nil
}

// FromRows builds a MemTable from rows, converting values with Coerce.
func FromRows(schema *Schema, mem memory.Allocator, rows ...Row) (*MemTable, error) {
	b := NewBuilder(schema, mem)
	defer b.Release()
	for _, r := range rows {
		values := make([]any, len(r.Values))
		for i, v := range r.Values {
			if i >= schema.Len() {
				break
			}
			c, err := Coerce(schema.Column(i).Type, v)
			if err != nil {
				return nil, fmt.Errorf("row %s column %s: %w", r.Key, schema.Column(i).Name, err)
			}
			values[i] = c
		}
		if err := b.Write(Row{Key: r.Key, Values: values}); err != nil {
			return nil, err
		}
	}
	return b.Table(), nil
}
