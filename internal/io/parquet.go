package io

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/tabula/internal/table"
)

// Read reads Parquet data and returns a table. A leading table.RowKeyField
// column supplies row keys.
func (r *ParquetReader) Read() (*table.MemTable, error) {
	// Parquet needs random access to the footer
	data, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating parquet file reader: %w", err)
	}
	defer pqReader.Close()

	readProps := pqarrow.ArrowReadProperties{BatchSize: int64(r.batchSize())}
	arrowReader, err := pqarrow.NewFileReader(pqReader, readProps, r.mem)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer tbl.Release()

	return r.fromArrowTable(tbl)
}

func (r *ParquetReader) batchSize() int {
	if r.options.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return r.options.BatchSize
}

// fromArrowTable copies an Arrow table into a MemTable, widening narrower
// numeric types to the table value types.
func (r *ParquetReader) fromArrowTable(tbl arrow.Table) (*table.MemTable, error) {
	schema, err := table.SchemaFromArrow(tbl.Schema())
	if err != nil {
		return nil, fmt.Errorf("mapping parquet schema: %w", err)
	}
	keyed := tbl.Schema().NumFields() > 0 && tbl.Schema().Field(0).Name == table.RowKeyField
	first := 0
	if keyed {
		first = 1
	}

	b := table.NewBuilder(schema, r.mem)
	defer b.Release()

	tr := array.NewTableReader(tbl, int64(r.batchSize()))
	defer tr.Release()

	var offset int64
	for tr.Next() {
		rec := tr.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			key := table.DefaultRowKey(offset)
			if keyed {
				if k, ok := table.CellValue(rec.Column(0), i).(string); ok {
					key = k
				}
			}
			values := make([]any, schema.Len())
			for c := range values {
				values[c] = table.CellValue(rec.Column(first+c), i)
			}
			if err := b.Write(table.Row{Key: key, Values: values}); err != nil {
				return nil, fmt.Errorf("parquet row %d: %w", offset, err)
			}
			offset++
		}
	}
	if err := tr.Err(); err != nil {
		return nil, fmt.Errorf("reading record batches: %w", err)
	}
	return b.Table(), nil
}

// Write writes the table to Parquet format
func (w *ParquetWriter) Write(t *table.MemTable) error {
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compressionCodec(w.options.Compression)),
		parquet.WithBatchSize(int64(w.batchSize())),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(memory.NewGoAllocator()))

	arrowSchema := w.arrowSchema(t.Schema())
	writer, err := pqarrow.NewFileWriter(arrowSchema, w.writer, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}

	for _, rec := range t.Records() {
		if err := w.writeRecord(writer, arrowSchema, rec); err != nil {
			_ = writer.Close()
			return fmt.Errorf("writing record batch: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing file writer: %w", err)
	}
	return nil
}

func (w *ParquetWriter) batchSize() int {
	if w.options.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return w.options.BatchSize
}

func (w *ParquetWriter) arrowSchema(schema *table.Schema) *arrow.Schema {
	full := schema.ArrowSchema()
	if w.options.RowKeys {
		return full
	}
	return arrow.NewSchema(full.Fields()[1:], nil)
}

func (w *ParquetWriter) writeRecord(writer *pqarrow.FileWriter, schema *arrow.Schema, rec arrow.Record) error {
	if w.options.RowKeys {
		return writer.Write(rec)
	}
	projected := array.NewRecord(schema, rec.Columns()[1:], rec.NumRows())
	defer projected.Release()
	return writer.Write(projected)
}

func compressionCodec(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "zstd":
		return compress.Codecs.Zstd
	case "uncompressed":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}
