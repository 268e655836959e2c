package main

import (
	"fmt"
	"io"
	"os"

	tio "github.com/paveg/tabula/internal/io"
	"github.com/paveg/tabula/internal/table"
)

// sink is an output file receiving rows. CSV outputs are written row by row;
// Parquet outputs are buffered and written on finish.
type sink struct {
	path    string
	rows    int64
	out     io.Writer
	closer  io.Closer
	csv     *tio.CSVRowWriter
	builder *table.Builder
	done    bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (c *cli) newSink(path string, schema *table.Schema, job *Job) (*sink, error) {
	s := &sink{path: path}
	if path == "-" {
		s.out, s.closer = c.stdout, nopCloser{}
	} else {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("creating output: %w", err)
		}
		s.out, s.closer = f, f
	}

	if path != "-" && formatOf(path) == formatParquet {
		s.builder = table.NewBuilder(schema, c.mem)
		return s, nil
	}
	w, err := tio.NewCSVRowWriter(s.out, schema, c.csvOptions(job))
	if err != nil {
		_ = s.closer.Close()
		return nil, err
	}
	s.csv = w
	return s, nil
}

func (s *sink) Write(row table.Row) error {
	s.rows++
	if s.builder != nil {
		return s.builder.Write(row)
	}
	return s.csv.Write(row)
}

func (s *sink) writeTable(t *table.MemTable) error {
	it := t.Rows()
	defer it.Close()
	for it.Next() {
		if err := s.Write(it.Row()); err != nil {
			return err
		}
	}
	return it.Err()
}

// finish flushes and closes the output.
func (s *sink) finish() error {
	if s.done {
		return nil
	}
	s.done = true
	defer s.closer.Close()

	if s.builder != nil {
		defer s.builder.Release()
		tbl := s.builder.Table()
		defer tbl.Release()
		if err := tio.NewParquetWriter(s.out, tio.DefaultParquetOptions()).Write(tbl); err != nil {
			return fmt.Errorf("writing %s: %w", s.path, err)
		}
		return nil
	}
	if err := s.csv.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}

// abort closes an unfinished output.
func (s *sink) abort() {
	if s.done {
		return
	}
	s.done = true
	if s.builder != nil {
		s.builder.Release()
	}
	_ = s.closer.Close()
}
