// Package tabula filters table rows by declarative criteria and groups rows
// into aggregated summaries. This package is the sole public API for the library.
//
// Filtering compiles a criteria set into a single row predicate. When every
// criterion is positional (row number criteria), the matching rows are
// computed as index ranges without reading any row; otherwise rows are
// scanned once. Grouping aggregates in memory for tables of known, bounded
// size and falls back to an external sort that spills to Arrow IPC files.
//
// Example:
//
//	engine, err := tabula.New()
//	if err != nil {
//		return err
//	}
//	matches, err := engine.Filter(ctx, tbl, tabula.Settings{
//		Criteria: []tabula.Criterion{
//			{Target: tabula.Col("age"), Operator: tabula.OpGT, Values: []any{30}},
//		},
//	})
//	if err != nil {
//		return err
//	}
//	defer matches.Release()
package tabula

import (
	"context"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/paveg/tabula/internal/aggregate"
	"github.com/paveg/tabula/internal/config"
	"github.com/paveg/tabula/internal/criteria"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/filter"
	"github.com/paveg/tabula/internal/groupby"
	"github.com/paveg/tabula/internal/logging"
	"github.com/paveg/tabula/internal/monitoring"
	"github.com/paveg/tabula/internal/predicate"
	"github.com/paveg/tabula/internal/progress"
	"github.com/paveg/tabula/internal/table"
)

// Table model.
type (
	Table     = table.MemTable
	Schema    = table.Schema
	Column    = table.Column
	ValueType = table.ValueType
	Row       = table.Row
	Source    = table.Source
	Writer    = table.Writer
)

const (
	TypeString  = table.TypeString
	TypeInt64   = table.TypeInt64
	TypeFloat64 = table.TypeFloat64
	TypeBool    = table.TypeBool
)

// Filter settings.
type (
	Settings    = criteria.Settings
	Criterion   = criteria.Criterion
	Target      = criteria.Target
	Operator    = predicate.Operator
	Combination = criteria.Combination
	OutputMode  = criteria.OutputMode
)

const (
	OpEQ         = predicate.OpEQ
	OpNEQ        = predicate.OpNEQ
	OpLT         = predicate.OpLT
	OpLTE        = predicate.OpLTE
	OpGT         = predicate.OpGT
	OpGTE        = predicate.OpGTE
	OpFirstNRows = predicate.OpFirstNRows
	OpLastNRows  = predicate.OpLastNRows
	OpRegex      = predicate.OpRegex
	OpWildcard   = predicate.OpWildcard
	OpIsTrue     = predicate.OpIsTrue
	OpIsFalse    = predicate.OpIsFalse
	OpIsMissing  = predicate.OpIsMissing

	And = criteria.And
	Or  = criteria.Or

	Matching    = criteria.Matching
	NonMatching = criteria.NonMatching
)

// Error sentinels for errors.Is.
var (
	ErrConfiguration = errors.ErrConfiguration
	ErrConsistency   = errors.ErrConsistency
	ErrCanceled      = errors.ErrCanceled
	ErrIO            = errors.ErrIO
)

// Col targets the named column.
func Col(name string) Target { return criteria.ColumnTarget(name) }

// RowKey targets the row key.
func RowKey() Target { return criteria.RowKeyTarget() }

// RowNumber targets the 1-based row number.
func RowNumber() Target { return criteria.RowNumberTarget() }

// Grouping and execution results.
type (
	GroupSpec      = groupby.Spec
	Aggregation    = groupby.Aggregation
	GroupResult    = groupby.Result
	FilterStats    = filter.Stats
	Streamer       = filter.Streamer
	Config         = config.Config
	ProgressReport = progress.Report
	MetricsSummary = monitoring.MetricsSummary

	AggregationRegistry    = aggregate.Registry
	AggregationOperator    = aggregate.Operator
	AggregationAccumulator = aggregate.Accumulator
)

// BuiltinAggregations returns a registry holding the built-in operators:
// sum, mean, min, max, count, missing_count, first, last, concatenate and
// unique_count. Custom operators may be registered on it.
func BuiltinAggregations() *AggregationRegistry { return aggregate.Builtins() }

// Engine runs filter and grouping operations with shared configuration.
// An Engine is safe for concurrent use; each call is an independent execution.
type Engine struct {
	cfg      config.Config
	alloc    memory.Allocator
	logger   *slog.Logger
	registry *aggregate.Registry
	metrics  *monitoring.MetricsCollector
	progress progress.Func

	filterStrategy filter.Strategy
	groupStrategy  groupby.Strategy
	optErr         error
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the global configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithAllocator sets the Arrow allocator for output tables.
func WithAllocator(alloc memory.Allocator) Option {
	return func(e *Engine) { e.alloc = alloc }
}

// WithLogger sets the logger. By default one is built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithAggregations replaces the built-in aggregation operators.
func WithAggregations(registry *AggregationRegistry) Option {
	return func(e *Engine) { e.registry = registry }
}

// WithProgress registers a progress callback for every execution.
func WithProgress(fn func(ProgressReport)) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithMetrics overrides Config.MetricsCollection.
func WithMetrics(enabled bool) Option {
	return func(e *Engine) { e.metrics = monitoring.NewMetricsCollector(enabled) }
}

// WithFilterStrategy forces a filter strategy: "slice", "scan" or "ranges".
// "" and "auto" keep automatic selection; other names make New fail.
func WithFilterStrategy(name string) Option {
	return func(e *Engine) {
		s, err := filter.ParseStrategy(name)
		if err != nil && e.optErr == nil {
			e.optErr = err
		}
		e.filterStrategy = s
	}
}

// WithGroupStrategy forces a grouping strategy: "in-memory" or "sorted".
// "" and "auto" keep automatic selection; other names make New fail.
func WithGroupStrategy(name string) Option {
	return func(e *Engine) {
		s, err := groupby.ParseStrategy(name)
		if err != nil && e.optErr == nil {
			e.optErr = err
		}
		e.groupStrategy = s
	}
}

// New creates an engine. The configuration is validated up front.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{cfg: config.GetGlobalConfig()}
	for _, opt := range opts {
		opt(e)
	}
	if e.optErr != nil {
		return nil, e.optErr
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.alloc == nil {
		e.alloc = memory.NewGoAllocator()
	}
	if e.logger == nil {
		e.logger = logging.New(e.cfg)
	}
	if e.registry == nil {
		e.registry = aggregate.Builtins()
	}
	if e.metrics == nil {
		e.metrics = monitoring.NewMetricsCollector(e.cfg.MetricsCollection)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Aggregations lists the registered aggregation operator ids.
func (e *Engine) Aggregations() []string { return e.registry.IDs() }

// Metrics summarizes the operations recorded so far. It is empty unless
// metrics collection is enabled.
func (e *Engine) Metrics() MetricsSummary { return e.metrics.GetSummary() }

func (e *Engine) filterOptions(split bool) filter.Options {
	cfg := e.cfg
	return filter.Options{
		Split:     split,
		Strategy:  e.filterStrategy,
		Config:    &cfg,
		Progress:  e.progress,
		Allocator: e.alloc,
		Logger:    e.logger,
	}
}

// Filter returns the rows of src selected by settings: the matching rows, or
// the non-matching rows when settings.OutputMode is NonMatching.
func (e *Engine) Filter(ctx context.Context, src Source, settings Settings) (*Table, error) {
	res, err := e.runFilter(ctx, "Filter", src, settings, false)
	if err != nil {
		return nil, err
	}
	return res.Matches, nil
}

// Split returns the selected rows and, second, all remaining rows. Every input
// row lands in exactly one output.
func (e *Engine) Split(ctx context.Context, src Source, settings Settings) (selected, rest *Table, err error) {
	res, err := e.runFilter(ctx, "Split", src, settings, true)
	if err != nil {
		return nil, nil, err
	}
	return res.Matches, res.NonMatches, nil
}

func (e *Engine) runFilter(ctx context.Context, op string, src Source, settings Settings, split bool) (*filter.Result, error) {
	var res *filter.Result
	err := e.metrics.RecordOperation(op, func() (monitoring.Stats, error) {
		var err error
		res, err = filter.Run(ctx, src, settings, e.filterOptions(split))
		if err != nil {
			return monitoring.Stats{}, err
		}
		written := res.Matches.Size()
		if res.NonMatches != nil {
			written += res.NonMatches.Size()
		}
		return monitoring.Stats{
			Strategy:    res.Strategy.String(),
			RowsRead:    res.RowsRead,
			RowsWritten: written,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// FilterTo streams the selected rows of src into first and, when second is
// not nil, the remaining rows into second.
func (e *Engine) FilterTo(ctx context.Context, src Source, settings Settings, first, second Writer) (FilterStats, error) {
	var stats FilterStats
	err := e.metrics.RecordOperation("FilterTo", func() (monitoring.Stats, error) {
		var err error
		stats, err = filter.RunTo(ctx, src, settings, e.filterOptions(second != nil), first, second)
		return monitoring.Stats{Strategy: stats.Strategy.String(), RowsRead: stats.RowsRead}, err
	})
	return stats, err
}

// NewStreamer creates a push-based filter for rows produced by an upstream of
// unknown size. Rows are pushed in order and routed as FilterTo would.
func (e *Engine) NewStreamer(schema *Schema, settings Settings, first, second Writer) (*Streamer, error) {
	return filter.NewStreamer(schema, settings, e.filterOptions(second != nil), first, second)
}

// GroupBy groups src by spec.GroupBy and computes spec.Aggregations per group.
func (e *Engine) GroupBy(ctx context.Context, src Source, spec GroupSpec) (*GroupResult, error) {
	cfg := e.cfg
	opts := groupby.Options{
		Strategy:  e.groupStrategy,
		Config:    &cfg,
		Progress:  e.progress,
		Allocator: e.alloc,
		Logger:    e.logger,
	}

	var res *groupby.Result
	err := e.metrics.RecordOperation("GroupBy", func() (monitoring.Stats, error) {
		var err error
		res, err = groupby.Group(ctx, src, spec, e.registry, opts)
		if err != nil {
			return monitoring.Stats{}, err
		}
		return monitoring.Stats{
			Strategy:    res.Strategy.String(),
			RowsRead:    res.RowsRead,
			RowsWritten: res.Table.Size(),
			Groups:      res.Groups,
			SpilledRuns: res.SpilledRuns,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GroupSchema returns the output schema GroupBy would produce for src.
func (e *Engine) GroupSchema(schema *Schema, spec GroupSpec) (*Schema, error) {
	return groupby.OutputSchema(schema, spec, e.registry)
}

// DefaultSettings returns the filter settings used when none are configured:
// a single criterion on the last column of schema.
func DefaultSettings(schema *Schema) Settings {
	return criteria.DefaultSettings(schema)
}

// NewSchema creates a schema from columns.
func NewSchema(columns ...Column) (*Schema, error) {
	return table.NewSchema(columns...)
}

// FromRows builds a table from rows, converting values to the column types.
func FromRows(schema *Schema, mem memory.Allocator, rows ...Row) (*Table, error) {
	return table.FromRows(schema, mem, rows...)
}

// LoadConfig reads a JSON or YAML configuration file and applies TABULA_*
// environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return Config{}, err
	}
	return config.ApplyEnv(cfg), nil
}
