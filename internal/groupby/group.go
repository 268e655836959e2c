package groupby

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"

	"github.com/paveg/tabula/internal/aggregate"
	"github.com/paveg/tabula/internal/config"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/logging"
	"github.com/paveg/tabula/internal/progress"
	"github.com/paveg/tabula/internal/table"
)

// Strategy selects the grouping engine.
type Strategy int

const (
	// StrategyAuto groups in memory when the size is known and at most
	// Config.MaxInMemoryRows, and by sorting otherwise.
	StrategyAuto Strategy = iota
	// StrategyInMemory hashes every group in one pass and emits groups in first-seen order.
	StrategyInMemory
	// StrategySorted sorts by the group columns and aggregates one chunk of equal keys at a time.
	StrategySorted
)

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyInMemory:
		return "in-memory"
	case StrategySorted:
		return "sorted"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy parses the names returned by Strategy.String. The empty name
// is StrategyAuto.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", StrategyAuto.String():
		return StrategyAuto, nil
	case StrategyInMemory.String():
		return StrategyInMemory, nil
	case StrategySorted.String():
		return StrategySorted, nil
	}
	return StrategyAuto, errors.NewConfigurationError(opGroupBy, "", fmt.Sprintf("unknown grouping strategy %q", name))
}

// Options tune a grouping execution. The zero value is usable.
type Options struct {
	Strategy Strategy
	// Config defaults to the global configuration.
	Config    *config.Config
	Progress  progress.Func
	Allocator memory.Allocator
	Logger    *slog.Logger
}

// Result is the output of a grouping. Table has one row per group; row keys
// are Row0, Row1, ... Hilite[i] holds the source offsets of group i when
// Spec.Hilite is set.
type Result struct {
	Table       *table.MemTable
	Hilite      []*roaring64.Bitmap
	Strategy    Strategy
	Groups      int64
	RowsRead    int64
	SpilledRuns int
	RunID       string
}

// Release releases the output table.
func (r *Result) Release() {
	if r.Table != nil {
		r.Table.Release()
	}
}

// Group partitions src by spec.GroupBy and aggregates every group with
// operators looked up in registry.
func Group(ctx context.Context, src table.Source, spec Spec, registry *aggregate.Registry, opts Options) (*Result, error) {
	cfg := config.GetGlobalConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigurationError(opGroupBy, "", err.Error())
	}
	p, err := resolve(src.Schema(), spec, registry)
	if err != nil {
		return nil, err
	}
	mem := opts.Allocator
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	size := src.Size()
	strategy := opts.Strategy
	if strategy == StrategyAuto {
		strategy = StrategySorted
		if size >= 0 && size <= cfg.MaxInMemoryRows {
			strategy = StrategyInMemory
		}
	}

	x := &execution{
		p:       p,
		cfg:     cfg,
		mem:     mem,
		logger:  logging.OrNoop(opts.Logger),
		monitor: progress.New(opGroupBy, cfg, opts.Progress),
		size:    size,
		runID:   uuid.NewString(),
		out:     table.NewBuilder(p.output, mem),
	}
	defer x.out.Release()
	x.logger.Debug("grouping strategy selected",
		"op", opGroupBy, "strategy", strategy.String(), "rows", size, "run_id", x.runID)

	switch strategy {
	case StrategyInMemory:
		err = x.inMemory(ctx, src)
	case StrategySorted:
		err = x.sorted(ctx, src)
	default:
		err = errors.NewConfigurationError(opGroupBy, "", fmt.Sprintf("unknown strategy %s", strategy))
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		Table:       x.out.Table(),
		Hilite:      x.hilite,
		Strategy:    strategy,
		Groups:      x.groups,
		RowsRead:    x.read,
		SpilledRuns: x.spilled,
		RunID:       x.runID,
	}
	x.logger.Info("grouping finished",
		"op", opGroupBy, "strategy", strategy.String(), "rows", x.read, "groups", x.groups, "run_id", x.runID)
	return res, nil
}

type execution struct {
	p       *plan
	cfg     config.Config
	mem     memory.Allocator
	logger  *slog.Logger
	monitor *progress.Monitor
	size    int64
	runID   string

	out     *table.Builder
	hilite  []*roaring64.Bitmap
	groups  int64
	read    int64
	spilled int
}

// total is the progress denominator: the sorted engine reads every row twice.
func (x *execution) total(passes int64) int64 {
	if x.size < 0 {
		return table.UnknownSize
	}
	return x.size * passes
}

func (x *execution) emit(s *State) error {
	values, err := s.finalize(x.p)
	if err != nil {
		return err
	}
	row := table.Row{Key: table.DefaultRowKey(x.groups), Values: values}
	if err := x.out.Write(row); err != nil {
		return errors.NewConsistencyError(opGroupBy, err.Error())
	}
	if x.p.spec.Hilite {
		x.hilite = append(x.hilite, s.Hilite())
	}
	x.groups++
	return nil
}

// emitImplicit emits the single group of a grouping without group columns
// when the input had no rows.
func (x *execution) emitImplicit() error {
	if len(x.p.groupIdx) > 0 || x.groups > 0 {
		return nil
	}
	return x.emit(newState(x.p, Key{}))
}

func (x *execution) inMemory(ctx context.Context, src table.Source) error {
	groups := newGroupMap(x.p)
	it := src.Rows()
	defer it.Close()
	total := x.total(1)
	for ; it.Next(); x.read++ {
		if err := x.monitor.Checkpoint(ctx, x.read, total); err != nil {
			return err
		}
		groups.add(x.read, x.p.project(it.Row()))
	}
	if err := it.Err(); err != nil {
		return errors.NewIOError(opGroupBy, err)
	}

	for _, s := range groups.order {
		if err := x.emit(s); err != nil {
			return err
		}
	}
	if err := x.emitImplicit(); err != nil {
		return err
	}
	x.monitor.Finish(x.read, total)
	return nil
}

func (x *execution) sorted(ctx context.Context, src table.Source) (err error) {
	sorter := newExternalSorter(x.p, x.cfg.SortRunRows, x.cfg.SpillBatchRows,
		x.cfg.SpillDirectory(), x.runID, x.mem, x.logger)
	defer func() {
		if cerr := sorter.Close(); cerr != nil && err == nil {
			err = errors.NewIOError(opSort, cerr)
		}
	}()

	total := x.total(2)
	it := src.Rows()
	for ; it.Next(); x.read++ {
		if err := x.monitor.Checkpoint(ctx, x.read, total); err != nil {
			it.Close()
			return err
		}
		if err := sorter.Add(x.read, x.p.project(it.Row())); err != nil {
			it.Close()
			return err
		}
	}
	if err := it.Err(); err != nil {
		it.Close()
		return errors.NewIOError(opGroupBy, err)
	}
	it.Close()
	x.spilled = sorter.Runs()

	merged, err := sorter.Merge()
	if err != nil {
		return err
	}

	chunk := newGroupMap(x.p)
	flush := func() error {
		for _, s := range chunk.order {
			if err := x.emit(s); err != nil {
				return err
			}
		}
		chunk.reset()
		return nil
	}

	var prev table.Row
	done := x.read
	for merged.Next() {
		if err := x.monitor.Checkpoint(ctx, done, total); err != nil {
			return err
		}
		done++
		cur := merged.Current()
		// Chunk boundary: the key order moved past the previous row.
		if chunk.len() > 0 && x.p.compareKeys(prev, cur.row) != 0 {
			if err := flush(); err != nil {
				return err
			}
		}
		chunk.add(cur.offset, cur.row)
		prev = cur.row
	}
	if err := merged.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	if err := x.emitImplicit(); err != nil {
		return err
	}
	x.monitor.Finish(done, total)
	x.logger.Debug("sorted grouping complete", "op", opGroupBy, "runs", x.spilled, "run_id", x.runID)
	return nil
}
