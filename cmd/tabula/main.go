// Command tabula runs filter, split and group jobs over CSV and Parquet files.
//
// Usage:
//
//	tabula -job job.yaml [-in input.csv] [-out out.csv] [-rest rest.csv] [-config tabula.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fatih/color"

	"github.com/paveg/tabula"
	"github.com/paveg/tabula/internal/config"
	tio "github.com/paveg/tabula/internal/io"
	"github.com/paveg/tabula/internal/table"
	"github.com/paveg/tabula/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cli holds the state of one invocation.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	mem    memory.Allocator
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		w := fs.Output()
		fmt.Fprintf(w, "tabula %s: row filtering and grouping for CSV and Parquet files\n\n", version.Version)
		fmt.Fprintf(w, "Usage: tabula -job job.yaml [options]\n\n")
		fmt.Fprintf(w, "Options:\n")
		fs.PrintDefaults()
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tabula", flag.ContinueOnError)
	fs.SetOutput(stderr)
	jobPath := fs.String("job", "", "YAML job file")
	inPath := fs.String("in", "", "input file, overrides the job input")
	outPath := fs.String("out", "", "output file, overrides the job output (- for stdout)")
	restPath := fs.String("rest", "", "second output of a split, overrides the job rest output")
	cfgPath := fs.String("config", "", "JSON or YAML configuration file")
	showProgress := fs.Bool("progress", false, "print progress to stderr")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.BoolVar(showVersion, "v", false, "print version and exit")
	fs.Usage = usage(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprint(stdout, version.Info().String())
		return 0
	}
	if *jobPath == "" {
		fs.Usage()
		return 2
	}

	c := &cli{stdout: stdout, stderr: stderr, mem: memory.NewGoAllocator()}
	if err := c.runJob(ctx, *jobPath, *inPath, *outPath, *restPath, *cfgPath, *showProgress); err != nil {
		color.New(color.FgRed).Fprintf(stderr, "✗ %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) runJob(ctx context.Context, jobPath, in, out, rest, cfgPath string, showProgress bool) error {
	job, err := LoadJob(jobPath)
	if err != nil {
		return err
	}
	if in != "" {
		job.Input = in
	}
	if out != "" {
		job.Output = out
	}
	if rest != "" {
		job.Rest = rest
	}
	if err := job.Validate(); err != nil {
		return err
	}

	cfg := config.LoadFromEnv()
	if cfgPath != "" {
		if cfg, err = tabula.LoadConfig(cfgPath); err != nil {
			return err
		}
	}

	opts := []tabula.Option{tabula.WithConfig(cfg), tabula.WithAllocator(c.mem)}
	if job.Operation == opGroup {
		opts = append(opts, tabula.WithGroupStrategy(job.Strategy))
	} else {
		opts = append(opts, tabula.WithFilterStrategy(job.Strategy))
	}
	if showProgress {
		progressColor := color.New(color.FgYellow)
		opts = append(opts, tabula.WithProgress(func(r tabula.ProgressReport) {
			if r.Total >= 0 {
				progressColor.Fprintf(c.stderr, "%s %d/%d rows\n", r.Op, r.Done, r.Total)
			} else {
				progressColor.Fprintf(c.stderr, "%s %d rows\n", r.Op, r.Done)
			}
		}))
	}
	engine, err := tabula.New(opts...)
	if err != nil {
		return err
	}

	return tabula.WithMemoryManager(func(mm *tabula.MemoryManager) error {
		src, closeInput, err := c.openInput(job, mm)
		if err != nil {
			return err
		}
		defer closeInput()

		var res *result
		if job.Operation == opGroup {
			res, err = c.group(ctx, engine, job, src, mm)
		} else {
			res, err = c.filter(ctx, engine, job, src)
		}
		if err != nil {
			return err
		}
		c.printSummary(job, res)
		if cfg.MetricsCollection {
			c.printMetrics(engine.Metrics())
		}
		return nil
	})
}

// result is what the summary reports.
type result struct {
	strategy string
	rowsRead int64
	groups   int64
	spilled  int
	outputs  []*sink
}

func (c *cli) csvOptions(job *Job) tio.CSVOptions {
	options := tio.DefaultCSVOptions()
	options.RowKeyColumn = job.RowKeyColumn
	return options
}

// openInput returns the job input as a source. Materialized tables are
// tracked by mm; the returned function closes streamed files.
func (c *cli) openInput(job *Job, mm *tabula.MemoryManager) (tabula.Source, func(), error) {
	f, err := os.Open(job.Input)
	if err != nil {
		return nil, nil, fmt.Errorf("opening input: %w", err)
	}
	closeFile := func() { _ = f.Close() }

	if job.streaming() {
		schema, err := tabula.NewSchema(job.Schema...)
		if err != nil {
			closeFile()
			return nil, nil, fmt.Errorf("job schema: %w", err)
		}
		return tio.NewCSVSource(f, schema, c.csvOptions(job)), closeFile, nil
	}

	defer closeFile()
	var reader tio.DataReader
	if formatOf(job.Input) == formatParquet {
		reader = tio.NewParquetReader(f, tio.DefaultParquetOptions(), c.mem)
	} else {
		reader = tio.NewCSVReader(f, c.csvOptions(job), c.mem)
	}
	tbl, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", job.Input, err)
	}
	mm.Track(tbl)
	return tbl, func() {}, nil
}

func (c *cli) filter(ctx context.Context, engine *tabula.Engine, job *Job, src tabula.Source) (*result, error) {
	settings := tabula.DefaultSettings(src.Schema())
	if job.Filter != nil {
		settings = *job.Filter
	}

	first, err := c.newSink(job.Output, src.Schema(), job)
	if err != nil {
		return nil, err
	}
	defer first.abort()
	outputs := []*sink{first}

	var second table.Writer
	if job.Operation == opSplit {
		s, err := c.newSink(job.Rest, src.Schema(), job)
		if err != nil {
			return nil, err
		}
		defer s.abort()
		outputs = append(outputs, s)
		second = s
	}

	stats, err := engine.FilterTo(ctx, src, settings, first, second)
	if err != nil {
		return nil, err
	}
	for _, s := range outputs {
		if err := s.finish(); err != nil {
			return nil, err
		}
	}
	return &result{strategy: stats.Strategy.String(), rowsRead: stats.RowsRead, outputs: outputs}, nil
}

func (c *cli) group(ctx context.Context, engine *tabula.Engine, job *Job, src tabula.Source, mm *tabula.MemoryManager) (*result, error) {
	res, err := engine.GroupBy(ctx, src, *job.Group)
	if err != nil {
		return nil, err
	}
	mm.Track(res)

	out, err := c.newSink(job.Output, res.Table.Schema(), job)
	if err != nil {
		return nil, err
	}
	defer out.abort()
	if err := out.writeTable(res.Table); err != nil {
		return nil, err
	}
	if err := out.finish(); err != nil {
		return nil, err
	}
	return &result{
		strategy: res.Strategy.String(),
		rowsRead: res.RowsRead,
		groups:   res.Groups,
		spilled:  res.SpilledRuns,
		outputs:  []*sink{out},
	}, nil
}

func (c *cli) printSummary(job *Job, res *result) {
	if job.Output == "-" {
		return
	}
	ok := color.New(color.FgGreen, color.Bold)
	name := color.New(color.FgCyan)

	ok.Fprintf(c.stdout, "✓ %s", job.Operation)
	fmt.Fprintf(c.stdout, "  strategy=%s rows_read=%d", res.strategy, res.rowsRead)
	if job.Operation == opGroup {
		fmt.Fprintf(c.stdout, " groups=%d spilled_runs=%d", res.groups, res.spilled)
	}
	fmt.Fprintln(c.stdout)
	for _, s := range res.outputs {
		fmt.Fprint(c.stdout, "  ")
		name.Fprint(c.stdout, s.path)
		fmt.Fprintf(c.stdout, "  %d rows\n", s.rows)
	}
}

func (c *cli) printMetrics(summary tabula.MetricsSummary) {
	color.New(color.FgMagenta).Fprintf(c.stdout, "  metrics: %d operations in %s, %d rows read, %d rows written\n",
		summary.TotalOperations, summary.TotalDuration, summary.TotalRowsRead, summary.TotalRowsWritten)
}
