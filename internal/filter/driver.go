package filter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/paveg/tabula/internal/config"
	"github.com/paveg/tabula/internal/criteria"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/logging"
	"github.com/paveg/tabula/internal/predicate"
	"github.com/paveg/tabula/internal/progress"
	"github.com/paveg/tabula/internal/rowrange"
	"github.com/paveg/tabula/internal/table"
)

const opFilter = "Filter"

// Strategy selects how a filter is executed.
type Strategy int

const (
	// StrategyAuto picks slicing, range walking or scanning from the criteria and the source.
	StrategyAuto Strategy = iota
	// StrategySlice extracts row ranges from a random-access source without reading rows.
	StrategySlice
	// StrategyScan evaluates the compiled predicate on every row.
	StrategyScan
	// StrategyRanges walks a sequential source alternating include and exclude phases.
	StrategyRanges
)

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategySlice:
		return "slice"
	case StrategyScan:
		return "scan"
	case StrategyRanges:
		return "ranges"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy parses the names returned by Strategy.String. The empty name
// is StrategyAuto.
func ParseStrategy(name string) (Strategy, error) {
	if name == "" {
		return StrategyAuto, nil
	}
	for _, s := range []Strategy{StrategyAuto, StrategySlice, StrategyScan, StrategyRanges} {
		if s.String() == name {
			return s, nil
		}
	}
	return StrategyAuto, errors.NewConfigurationError(opFilter, "", fmt.Sprintf("unknown filter strategy %q", name))
}

// Options tune a filter execution. The zero value is usable.
type Options struct {
	// Split requests the second output with the rows not sent to the first.
	Split    bool
	Strategy Strategy
	// Config defaults to the global configuration.
	Config    *config.Config
	Progress  progress.Func
	Allocator memory.Allocator
	Logger    *slog.Logger
}

func (o Options) config() config.Config {
	if o.Config != nil {
		return *o.Config
	}
	return config.GetGlobalConfig()
}

// Result holds the outputs of a filter execution. NonMatches is nil unless
// Options.Split was set. The caller owns both tables.
type Result struct {
	Matches    *table.MemTable
	NonMatches *table.MemTable
	Strategy   Strategy
	RowsRead   int64
}

// Release releases both outputs.
func (r *Result) Release() {
	if r.Matches != nil {
		r.Matches.Release()
	}
	if r.NonMatches != nil {
		r.NonMatches.Release()
	}
}

// Run filters src and materializes the outputs as tables.
func Run(ctx context.Context, src table.Source, settings criteria.Settings, opts Options) (*Result, error) {
	first := table.NewBuilder(src.Schema(), opts.Allocator)
	defer first.Release()
	var second *table.Builder
	var secondW table.Writer
	if opts.Split {
		second = table.NewBuilder(src.Schema(), opts.Allocator)
		defer second.Release()
		secondW = second
	}

	stats, err := RunTo(ctx, src, settings, opts, first, secondW)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Matches:  first.Table(),
		Strategy: stats.Strategy,
		RowsRead: stats.RowsRead,
	}
	if second != nil {
		res.NonMatches = second.Table()
	}
	return res, nil
}

// Stats describes a completed execution.
type Stats struct {
	Strategy Strategy
	RowsRead int64
}

// tableWriter is implemented by sinks accepting whole tables without copying.
type tableWriter interface {
	WriteTable(t *table.MemTable)
}

// RunTo filters src into first and, when second is not nil, routes the other
// rows to second. Rows keep their input order within each output.
func RunTo(ctx context.Context, src table.Source, settings criteria.Settings, opts Options, first, second table.Writer) (Stats, error) {
	cfg := opts.config()
	logger := logging.OrNoop(opts.Logger)
	size := src.Size()

	compiled, err := Compile(src.Schema(), settings, size, predicate.Capabilities{OrderStrings: cfg.OrderStrings})
	if err != nil {
		return Stats{}, err
	}
	strategy, err := chooseStrategy(opts.Strategy, compiled, src)
	if err != nil {
		return Stats{}, err
	}
	logger.Debug("filter strategy selected",
		"op", opFilter, "strategy", strategy.String(), "rows", size, "criteria", len(settings.Criteria))

	monitor := progress.New(opFilter, cfg, opts.Progress)
	x := &execution{
		compiled: compiled,
		settings: settings,
		size:     size,
		monitor:  monitor,
		first:    first,
		second:   second,
	}

	switch strategy {
	case StrategySlice:
		err = x.slice(ctx, src.(table.Slicer))
	case StrategyRanges:
		err = x.ranges(ctx, src)
	default:
		err = x.scan(ctx, src)
	}
	if err != nil {
		return Stats{Strategy: strategy, RowsRead: x.read}, err
	}
	monitor.Finish(x.read, size)
	logger.Debug("filter finished", "op", opFilter, "strategy", strategy.String(), "rows", x.read)
	return Stats{Strategy: strategy, RowsRead: x.read}, nil
}

func chooseStrategy(requested Strategy, c *Compiled, src table.Source) (Strategy, error) {
	slicer, sliceable := src.(table.Slicer)
	canSlice := !c.HasData() && sliceable && slicer.Size() >= 0
	switch requested {
	case StrategyAuto:
		switch {
		case c.HasData():
			return StrategyScan, nil
		case canSlice:
			return StrategySlice, nil
		default:
			return StrategyRanges, nil
		}
	case StrategySlice:
		if !canSlice {
			return 0, errors.NewConfigurationError(opFilter, "",
				"slicing requires row number criteria only and a random-access source of known size")
		}
		return StrategySlice, nil
	case StrategyRanges:
		if c.HasData() {
			return 0, errors.NewConfigurationError(opFilter, "", "range walking requires row number criteria only")
		}
		return StrategyRanges, nil
	case StrategyScan:
		return StrategyScan, nil
	}
	return 0, errors.NewConfigurationError(opFilter, "", fmt.Sprintf("unknown strategy %s", requested))
}

type execution struct {
	compiled *Compiled
	settings criteria.Settings
	size     int64
	monitor  *progress.Monitor
	first    table.Writer
	second   table.Writer
	read     int64
}

func (x *execution) partition() (rowrange.Partition, error) {
	p, err := x.compiled.Partition()
	if err != nil {
		return p, err
	}
	return p, p.CheckSpan(x.size)
}

func (x *execution) slice(ctx context.Context, src table.Slicer) error {
	p, err := x.partition()
	if err != nil {
		return err
	}
	if err := x.monitor.Check(ctx); err != nil {
		return err
	}
	if err := writeRanges(src, p.Matching, x.first); err != nil {
		return err
	}
	if x.second != nil {
		if err := writeRanges(src, p.NonMatching, x.second); err != nil {
			return err
		}
	}
	x.read = x.size
	return nil
}

func writeRanges(src table.Slicer, set rowrange.Set, w table.Writer) error {
	for _, r := range set {
		part := src.Slice(r.Lower, r.Upper)
		err := writePart(part, w)
		part.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

func writePart(part *table.MemTable, w table.Writer) error {
	if tw, ok := w.(tableWriter); ok {
		tw.WriteTable(part)
		return nil
	}
	it := part.Rows()
	defer it.Close()
	for it.Next() {
		if err := w.Write(it.Row()); err != nil {
			return errors.NewIOError(opFilter, err)
		}
	}
	return nil
}

func (x *execution) scan(ctx context.Context, src table.Source) error {
	wantMatch := x.settings.OutputMode == criteria.Matching
	it := src.Rows()
	defer it.Close()

	for ; it.Next(); x.read++ {
		if err := x.monitor.Checkpoint(ctx, x.read, x.size); err != nil {
			return err
		}
		row := it.Row()
		if x.compiled.Matches(x.read, row) == wantMatch {
			if err := x.first.Write(row); err != nil {
				return errors.NewIOError(opFilter, err)
			}
		} else if x.second != nil {
			if err := x.second.Write(row); err != nil {
				return errors.NewIOError(opFilter, err)
			}
		}
	}
	if err := it.Err(); err != nil {
		return errors.NewIOError(opFilter, err)
	}
	return nil
}

// ranges walks a sequential source. Rows inside a range of the first half are
// included, the others excluded. Without a second output the walk stops
// reading once the last included range has closed.
func (x *execution) ranges(ctx context.Context, src table.Source) error {
	p, err := x.partition()
	if err != nil {
		return err
	}
	include := p.Matching

	it := src.Rows()
	defer it.Close()
	next := 0 // first include range not yet closed
	for {
		for next < len(include) && x.read >= include[next].Upper {
			next++
		}
		if x.second == nil && next == len(include) {
			break
		}
		if !it.Next() {
			break
		}
		if err := x.monitor.Checkpoint(ctx, x.read, x.size); err != nil {
			return err
		}
		if next < len(include) && x.read >= include[next].Lower {
			if err := x.first.Write(it.Row()); err != nil {
				return errors.NewIOError(opFilter, err)
			}
		} else if x.second != nil {
			if err := x.second.Write(it.Row()); err != nil {
				return errors.NewIOError(opFilter, err)
			}
		}
		x.read++
	}
	if err := it.Err(); err != nil {
		return errors.NewIOError(opFilter, err)
	}
	return x.monitor.Check(ctx)
}
