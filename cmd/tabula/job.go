package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paveg/tabula"
)

// Operations a job can run.
const (
	opFilter = "filter"
	opSplit  = "split"
	opGroup  = "group"
)

// Job is a YAML job file.
//
//	operation: split
//	input: employees.csv
//	output: seniors.csv
//	rest: others.csv
//	filter:
//	  criteria:
//	    - target: {column: age}
//	      operator: GTE
//	      values: [40]
type Job struct {
	Operation string `yaml:"operation"`
	Input     string `yaml:"input"`
	Output    string `yaml:"output"`
	// Rest receives the rows not selected by a split.
	Rest string `yaml:"rest,omitempty"`
	// RowKeyColumn names the CSV column holding row keys.
	RowKeyColumn string `yaml:"row_key_column,omitempty"`
	// Schema declares the CSV input columns. Declared CSV inputs are streamed
	// instead of loaded, so their size is unknown to the engine.
	Schema   []tabula.Column `yaml:"schema,omitempty"`
	Strategy string          `yaml:"strategy,omitempty"`

	Filter *tabula.Settings  `yaml:"filter,omitempty"`
	Group  *tabula.GroupSpec `yaml:"group,omitempty"`
}

// LoadJob reads a YAML job file.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file %s: %w", path, err)
	}
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job file %s: %w", path, err)
	}
	return &job, nil
}

// Validate checks the job is complete enough to run.
func (j *Job) Validate() error {
	j.Operation = strings.ToLower(strings.TrimSpace(j.Operation))
	switch j.Operation {
	case opFilter, opSplit:
		if j.Group != nil {
			return fmt.Errorf("%s job must not have a group section", j.Operation)
		}
	case opGroup:
		if j.Group == nil {
			return fmt.Errorf("group job needs a group section")
		}
	case "":
		return fmt.Errorf("job has no operation")
	default:
		return fmt.Errorf("unknown operation %q", j.Operation)
	}
	if j.Input == "" {
		return fmt.Errorf("job has no input")
	}
	if j.Output == "" {
		return fmt.Errorf("job has no output")
	}
	if j.Operation == opSplit && j.Rest == "" {
		return fmt.Errorf("split job needs a rest output")
	}
	if j.streaming() && formatOf(j.Input) != formatCSV {
		return fmt.Errorf("a declared schema requires CSV input")
	}
	return nil
}

// streaming reports whether the input is read row by row.
func (j *Job) streaming() bool { return len(j.Schema) > 0 }

const (
	formatCSV     = "csv"
	formatParquet = "parquet"
)

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return formatParquet
	}
	return formatCSV
}
