package groupby

import (
	"container/heap"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/exp/mmap"

	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/table"
)

const (
	opSort      = "ExternalSort"
	offsetField = "__offset"
)

type sortedRow struct {
	offset int64
	row    table.Row
}

// externalSorter orders projected rows by their group columns. Rows are
// buffered in runs of runRows; full runs are stably sorted and spilled to
// LZ4-compressed Arrow IPC files, which are read back through mmap and
// merged. Equal keys keep their input order.
type externalSorter struct {
	p         *plan
	runRows   int
	batchRows int
	baseDir   string
	runID     string
	mem       memory.Allocator
	logger    *slog.Logger

	dir    string
	schema *arrow.Schema
	buf    []sortedRow
	runs   []string
	open   []rowCursor
}

func newExternalSorter(p *plan, runRows, batchRows int, baseDir, runID string, mem memory.Allocator, logger *slog.Logger) *externalSorter {
	return &externalSorter{
		p:         p,
		runRows:   max(1, runRows),
		batchRows: max(1, batchRows),
		baseDir:   baseDir,
		runID:     runID,
		mem:       mem,
		logger:    logger,
	}
}

// Add buffers a row and spills the buffer once it holds a full run.
func (s *externalSorter) Add(offset int64, row table.Row) error {
	s.buf = append(s.buf, sortedRow{offset: offset, row: row})
	if len(s.buf) >= s.runRows {
		return s.spill()
	}
	return nil
}

// Runs returns the number of spilled runs.
func (s *externalSorter) Runs() int { return len(s.runs) }

func (s *externalSorter) sortBuffer() {
	sort.SliceStable(s.buf, func(i, j int) bool {
		return s.p.compareKeys(s.buf[i].row, s.buf[j].row) < 0
	})
}

func (s *externalSorter) spillSchema() *arrow.Schema {
	if s.schema != nil {
		return s.schema
	}
	base := s.p.projection.ArrowSchema().Fields()
	fields := make([]arrow.Field, 0, len(base)+1)
	fields = append(fields, base[0], arrow.Field{Name: offsetField, Type: arrow.PrimitiveTypes.Int64})
	fields = append(fields, base[1:]...)
	s.schema = arrow.NewSchema(fields, nil)
	return s.schema
}

func (s *externalSorter) spill() error {
	if len(s.buf) == 0 {
		return nil
	}
	if s.dir == "" {
		dir, err := os.MkdirTemp(s.baseDir, "tabula-"+s.runID+"-")
		if err != nil {
			return errors.NewIOError(opSort, err)
		}
		s.dir = dir
	}
	s.sortBuffer()

	path := filepath.Join(s.dir, fmt.Sprintf("run-%05d.arrow", len(s.runs)))
	if err := s.writeRun(path); err != nil {
		return errors.NewIOError(opSort, err)
	}
	s.logger.Debug("spill run written",
		"op", opSort, "run_id", s.runID, "run", len(s.runs), "rows", len(s.buf))
	s.runs = append(s.runs, path)
	s.buf = s.buf[:0]
	return nil
}

func (s *externalSorter) writeRun(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	schema := s.spillSchema()
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(s.mem), ipc.WithLZ4())
	if err != nil {
		return err
	}
	rb := array.NewRecordBuilder(s.mem, schema)
	defer rb.Release()

	flush := func() error {
		rec := rb.NewRecord()
		defer rec.Release()
		return w.Write(rec)
	}
	cols := s.p.projection.Columns()
	pending := 0
	for _, sr := range s.buf {
		rb.Field(0).(*array.StringBuilder).Append(sr.row.Key)
		rb.Field(1).(*array.Int64Builder).Append(sr.offset)
		for i, v := range sr.row.Values {
			if err := table.AppendValue(rb.Field(i+2), cols[i], v); err != nil {
				return err
			}
		}
		pending++
		if pending == s.batchRows {
			if err := flush(); err != nil {
				return err
			}
			pending = 0
		}
	}
	if pending > 0 {
		if err := flush(); err != nil {
			return err
		}
	}
	return w.Close()
}

// Merge returns the rows in key order. When nothing was spilled the buffer
// is sorted in place; otherwise the remaining buffer joins the spilled runs
// as the newest run.
func (s *externalSorter) Merge() (*mergeIterator, error) {
	s.sortBuffer()
	cursors := make([]rowCursor, 0, len(s.runs)+1)
	for _, path := range s.runs {
		c, err := openRun(path, s.mem)
		if err != nil {
			return nil, errors.NewIOError(opSort, err)
		}
		s.open = append(s.open, c)
		cursors = append(cursors, c)
	}
	if len(s.buf) > 0 {
		cursors = append(cursors, &memCursor{rows: s.buf, pos: -1})
	}
	return &mergeIterator{h: &mergeHeap{p: s.p}, pending: cursors}, nil
}

// Close releases open runs and removes the spill directory.
func (s *externalSorter) Close() error {
	var first error
	for _, c := range s.open {
		if err := c.close(); err != nil && first == nil {
			first = err
		}
	}
	s.open = nil
	if s.dir != "" {
		if err := os.RemoveAll(s.dir); err != nil && first == nil {
			first = err
		}
		s.dir = ""
	}
	s.buf = nil
	return first
}

type rowCursor interface {
	next() bool
	current() sortedRow
	err() error
	close() error
}

type memCursor struct {
	rows []sortedRow
	pos  int
}

func (c *memCursor) next() bool {
	if c.pos+1 >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *memCursor) current() sortedRow { return c.rows[c.pos] }
func (c *memCursor) err() error         { return nil }
func (c *memCursor) close() error       { return nil }

// runCursor reads a spilled run. Strings are cloned out of the Arrow
// buffers because the mapping is closed with the run.
type runCursor struct {
	mm     *mmap.ReaderAt
	reader *ipc.FileReader
	rec    arrow.Record
	recIdx int
	row    int
	cur    sortedRow
	fail   error
}

func openRun(path string, mem memory.Allocator) (*runCursor, error) {
	mm, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := ipc.NewFileReader(io.NewSectionReader(mm, 0, int64(mm.Len())), ipc.WithAllocator(mem))
	if err != nil {
		mm.Close()
		return nil, err
	}
	return &runCursor{mm: mm, reader: reader, recIdx: -1}, nil
}

func (c *runCursor) next() bool {
	if c.fail != nil {
		return false
	}
	for c.rec == nil || c.row+1 >= int(c.rec.NumRows()) {
		if c.recIdx+1 >= c.reader.NumRecords() {
			return false
		}
		c.recIdx++
		rec, err := c.reader.Record(c.recIdx)
		if err != nil {
			c.fail = err
			return false
		}
		c.rec = rec
		c.row = -1
	}
	c.row++
	c.cur = c.decode(c.row)
	return true
}

func (c *runCursor) decode(i int) sortedRow {
	n := int(c.rec.NumCols())
	values := make([]any, n-2)
	for col := 2; col < n; col++ {
		v := table.CellValue(c.rec.Column(col), i)
		if str, ok := v.(string); ok {
			v = strings.Clone(str)
		}
		values[col-2] = v
	}
	return sortedRow{
		offset: c.rec.Column(1).(*array.Int64).Value(i),
		row: table.Row{
			Key:    strings.Clone(c.rec.Column(0).(*array.String).Value(i)),
			Values: values,
		},
	}
}

func (c *runCursor) current() sortedRow { return c.cur }
func (c *runCursor) err() error         { return c.fail }

func (c *runCursor) close() error {
	c.rec = nil
	rerr := c.reader.Close()
	merr := c.mm.Close()
	if rerr != nil {
		return rerr
	}
	return merr
}

type mergeItem struct {
	cursor rowCursor
	run    int
}

type mergeHeap struct {
	p     *plan
	items []mergeItem
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if c := h.p.compareKeys(a.cursor.current().row, b.cursor.current().row); c != 0 {
		return c < 0
	}
	return a.run < b.run
}

func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x any)    { h.items = append(h.items, x.(mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// mergeIterator is a k-way merge of sorted cursors. Ties go to the cursor of
// the earlier run, which holds earlier rows.
type mergeIterator struct {
	h       *mergeHeap
	pending []rowCursor
	started bool
	cur     sortedRow
	fail    error
}

func (m *mergeIterator) Next() bool {
	if m.fail != nil {
		return false
	}
	if !m.started {
		m.started = true
		for run, c := range m.pending {
			if c.next() {
				m.h.items = append(m.h.items, mergeItem{cursor: c, run: run})
			} else if err := c.err(); err != nil {
				m.fail = err
				return false
			}
		}
		m.pending = nil
		heap.Init(m.h)
	} else if m.h.Len() > 0 {
		top := m.h.items[0].cursor
		if top.next() {
			heap.Fix(m.h, 0)
		} else {
			if err := top.err(); err != nil {
				m.fail = err
				return false
			}
			heap.Pop(m.h)
		}
	}
	if m.h.Len() == 0 {
		return false
	}
	m.cur = m.h.items[0].cursor.current()
	return true
}

func (m *mergeIterator) Current() sortedRow { return m.cur }

func (m *mergeIterator) Err() error {
	if m.fail != nil {
		return errors.NewIOError(opSort, m.fail)
	}
	return nil
}
