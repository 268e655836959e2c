package filter

import (
	"context"

	"github.com/paveg/tabula/internal/criteria"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/predicate"
	"github.com/paveg/tabula/internal/progress"
	"github.com/paveg/tabula/internal/rowrange"
	"github.com/paveg/tabula/internal/table"
)

const opStream = "StreamFilter"

// Streamer is the push form of the filter: the caller hands rows over one at
// a time and they are routed immediately. The table size is unknown, so
// LAST_N_ROWS criteria are rejected.
type Streamer struct {
	compiled  *Compiled
	wantMatch bool
	monitor   *progress.Monitor
	first     table.Writer
	second    table.Writer
	offset    int64
	// end is the offset after which no row can reach the first output, or
	// rowrange.Unbounded when the filter reads row data.
	end    int64
	closed bool
}

// NewStreamer compiles settings for rows of schema. second may be nil.
func NewStreamer(schema *table.Schema, settings criteria.Settings, opts Options, first, second table.Writer) (*Streamer, error) {
	cfg := opts.config()
	compiled, err := Compile(schema, settings, table.UnknownSize, predicate.Capabilities{OrderStrings: cfg.OrderStrings})
	if err != nil {
		return nil, err
	}
	s := &Streamer{
		compiled:  compiled,
		wantMatch: settings.OutputMode == criteria.Matching,
		monitor:   progress.New(opStream, cfg, opts.Progress),
		first:     first,
		second:    second,
		end:       rowrange.Unbounded,
	}
	if !compiled.HasData() {
		p, err := compiled.Partition()
		if err != nil {
			return nil, err
		}
		s.end = 0
		if n := len(p.Matching); n > 0 {
			s.end = p.Matching[n-1].Upper
		}
	}
	return s, nil
}

// Push routes row, which sits at the next offset.
func (s *Streamer) Push(ctx context.Context, row table.Row) error {
	if s.closed {
		return errors.NewConsistencyError(opStream, "push after close")
	}
	if err := s.monitor.Checkpoint(ctx, s.offset, table.UnknownSize); err != nil {
		return err
	}
	offset := s.offset
	s.offset++
	if s.compiled.Matches(offset, row) == s.wantMatch {
		if err := s.first.Write(row); err != nil {
			return errors.NewIOError(opStream, err)
		}
		return nil
	}
	if s.second != nil {
		if err := s.second.Write(row); err != nil {
			return errors.NewIOError(opStream, err)
		}
	}
	return nil
}

// Done reports whether further rows can only be dropped, so the upstream may
// stop producing.
func (s *Streamer) Done() bool {
	return s.second == nil && s.offset >= s.end
}

// Offset returns the number of rows pushed so far.
func (s *Streamer) Offset() int64 { return s.offset }

// Close ends the stream and emits the final progress report.
func (s *Streamer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.monitor.Finish(s.offset, s.offset)
	return nil
}
