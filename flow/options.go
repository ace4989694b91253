package flow

import "time"

// RunOptions configures a single Run call. Fields that no RunOption sets
// keep their defaults; a value set explicitly, including zero, is used as
// given (a zero Timeout expires immediately, and a zero MaxNodeVisits
// fails the first node with MAX_NODE_VISITS_EXCEEDED).
type RunOptions struct {
	// Timeout bounds the whole run's wall-clock budget. Default: 10
	// minutes. Exceeding it fails the run with EXECUTION_TIMEOUT without
	// forcibly preempting any in-flight node body.
	Timeout time.Duration

	// MaxNodeVisits bounds the total number of node invocations across
	// the run, guarding against runaway loops. Default: 100. Exceeding
	// it fails the run with MAX_NODE_VISITS_EXCEEDED.
	MaxNodeVisits int64

	// DisableHistory skips HistoryRecord bookkeeping for callers that
	// don't need it and want to avoid the retained-memory cost.
	DisableHistory bool
}

const (
	defaultTimeout       = 10 * time.Minute
	defaultMaxNodeVisits = int64(100)
)

func defaultRunOptions() RunOptions {
	return RunOptions{
		Timeout:       defaultTimeout,
		MaxNodeVisits: defaultMaxNodeVisits,
	}
}

// RunOption mutates RunOptions. These compose left to right over the
// package defaults.
type RunOption func(*RunOptions)

// WithTimeout overrides the run's wall-clock budget.
func WithTimeout(d time.Duration) RunOption {
	return func(o *RunOptions) { o.Timeout = d }
}

// WithMaxNodeVisits overrides the run's total node-visit budget.
func WithMaxNodeVisits(n int64) RunOption {
	return func(o *RunOptions) { o.MaxNodeVisits = n }
}

// WithDisableHistory disables HistoryRecord bookkeeping for this run.
func WithDisableHistory() RunOption {
	return func(o *RunOptions) { o.DisableHistory = true }
}

// CompileOption mutates a Runnable right after Compile produces it,
// before any Run call. Used for runnable-scoped, not per-run, concerns
// such as metrics.
type CompileOption func(*Runnable)

// WithMetrics attaches a Metrics collector to every future Run on this
// Runnable.
func WithMetrics(m *Metrics) CompileOption {
	return func(r *Runnable) { r.metrics = m }
}
