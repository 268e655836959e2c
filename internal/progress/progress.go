// Package progress provides the cancellation and progress checkpoint that
// row-scanning loops call once per row.
package progress

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/paveg/tabula/internal/config"
	"github.com/paveg/tabula/internal/errors"
)

// Report is a progress snapshot. Total is negative when the row count is unknown.
type Report struct {
	Op    string
	Done  int64
	Total int64
}

// Fraction returns Done/Total, or -1 when Total is unknown.
func (r Report) Fraction() float64 {
	if r.Total < 0 {
		return -1
	}
	if r.Total == 0 {
		return 1
	}
	return float64(r.Done) / float64(r.Total)
}

// Func receives progress reports. It must not block.
type Func func(Report)

// Monitor throttles progress reports and checks for cancellation every
// CancelCheckInterval rows. A Monitor is used by one execution at a time.
type Monitor struct {
	op       string
	fn       Func
	limiter  *rate.Limiter
	every    int64
	last     int64
	reported bool
}

// New creates a monitor for op. fn may be nil.
func New(op string, cfg config.Config, fn Func) *Monitor {
	every := int64(cfg.CancelCheckInterval)
	if every <= 0 {
		every = 1
	}
	limit := rate.Inf
	if cfg.ProgressInterval > 0 {
		limit = rate.Every(cfg.ProgressInterval)
	}
	return &Monitor{
		op:      op,
		fn:      fn,
		limiter: rate.NewLimiter(limit, 1),
		every:   every,
		last:    -1,
	}
}

// Checkpoint is called before processing row done (0-based). It returns a
// canceled error once ctx is done and reports progress when the rate allows.
func (m *Monitor) Checkpoint(ctx context.Context, done, total int64) error {
	if done%m.every == 0 {
		if err := ctx.Err(); err != nil {
			return errors.NewCanceledError(m.op, err)
		}
	}
	if m.fn != nil && done > m.last && m.limiter.Allow() {
		m.emit(done, total)
	}
	return nil
}

// Check returns a canceled error when ctx is done, regardless of the interval.
func (m *Monitor) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCanceledError(m.op, err)
	}
	return nil
}

// Finish reports the final count unless it was already reported.
func (m *Monitor) Finish(done, total int64) {
	if m.fn != nil && (done > m.last || !m.reported) {
		m.emit(done, total)
	}
}

func (m *Monitor) emit(done, total int64) {
	m.last = done
	m.reported = true
	m.fn(Report{Op: m.op, Done: done, Total: total})
}
