package flow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flowkit/flowkit/flow/emit"
)

// mergeSlot tracks one branch source's delivery state for one in-flight
// merge node invocation.
type mergeSlot struct {
	source  string
	output  any
	pending bool
}

// execContext holds everything that must be isolated per Run call: the
// things spec.md §9 explicitly forbids sharing across concurrent runs on
// the same Runnable (merge_state, visits_remaining, history, thread
// pool), plus the plan and bus the run reads from.
type execContext struct {
	executionID string
	runCtx      context.Context
	opts        RunOptions
	plan        *plan
	bus         *emit.Bus
	middlewares []Middleware
	metrics     *Metrics

	visitsRemaining atomic.Int64

	historyMu sync.Mutex
	history   []HistoryRecord

	mergeMu    sync.Mutex
	mergeState map[string][]*mergeSlot

	pool *ThreadPool
}

func (ec *execContext) appendHistory(r HistoryRecord) {
	ec.historyMu.Lock()
	ec.history = append(ec.history, r)
	ec.historyMu.Unlock()
}

func newExecContext(ctx context.Context, r *Runnable, executionID string, opts RunOptions) *execContext {
	ec := &execContext{
		executionID: executionID,
		runCtx:      ctx,
		opts:        opts,
		plan:        r.plan,
		bus:         r.bus,
		middlewares: r.middlewareChain(),
		metrics:     r.metrics,
		pool:        NewThreadPool(),
		mergeState:  make(map[string][]*mergeSlot),
	}
	ec.visitsRemaining.Store(opts.MaxNodeVisits)

	for name, d := range r.plan.nodes {
		if d.kind == KindMerge {
			slots := make([]*mergeSlot, len(d.branch))
			for i, src := range d.branch {
				slots[i] = &mergeSlot{source: src, pending: true}
			}
			ec.mergeState[name] = slots
		}
	}
	return ec
}

// Runnable is the frozen, compiled graph, ready to be run one or more
// times (concurrently, if the caller chooses — each Run gets its own
// execContext). It owns the shared event bus and middleware list that
// every concurrent run publishes to and is intercepted by.
type Runnable struct {
	plan *plan

	bus         *emit.Bus
	mu          sync.Mutex
	middlewares []Middleware

	metrics *Metrics

	exitReason   atomic.Pointer[string]
	runningCount atomic.Int64
}

func newRunnable(p *plan) *Runnable {
	return &Runnable{
		plan: p,
		bus:  emit.NewBus(),
	}
}

// Use appends mw to the middleware chain, after the built-in exit-check
// middleware and after any previously registered middleware.
func (r *Runnable) Use(mw Middleware) *Runnable {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
	return r
}

func (r *Runnable) middlewareChain() []Middleware {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := make([]Middleware, 0, len(r.middlewares)+1)
	chain = append(chain, exitMiddleware(r))
	chain = append(chain, r.middlewares...)
	return chain
}

// Subscribe registers an event handler on this Runnable's bus.
func (r *Runnable) Subscribe(h emit.Handler) { r.bus.Subscribe(h) }

// Unsubscribe removes a previously registered handler.
func (r *Runnable) Unsubscribe(h emit.Handler) { r.bus.Unsubscribe(h) }

// Exit requests cooperative cancellation of any in-flight Run call on
// this Runnable. It takes effect the next time a node would be
// scheduled (the built-in exit-check middleware observes exit_reason at
// the start of every step); it never preempts a node body already
// executing. See DESIGN.md for why this field is Runnable-scoped rather
// than per-execution.
func (r *Runnable) Exit(reason string) {
	r.exitReason.Store(&reason)
}

// IsRunning reports whether any Run call on this Runnable is currently
// in flight.
func (r *Runnable) IsRunning() bool {
	return r.runningCount.Load() > 0
}

func newThreadID() string { return uuid.NewString() }

type scheduler struct{}

// Run executes the graph once, starting at the compiled start node with
// input, and blocks until the workflow terminates, times out, or is
// exited. It is safe to call concurrently on the same Runnable; each
// call gets its own execution_id, history, merge state, visit budget,
// and thread pool, but all calls share the same event bus and
// middleware chain (and Exit/exit_reason).
func (r *Runnable) Run(ctx context.Context, input any, opts ...RunOption) (*Result, error) {
	o := defaultRunOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r.exitReason.Store(nil)
	r.runningCount.Add(1)
	defer r.runningCount.Add(-1)

	executionID := uuid.NewString()
	// A zero timeout is an immediately-expired deadline, not "no deadline":
	// the run must fail EXECUTION_TIMEOUT before producing a terminal
	// output (spec.md §8 boundary behaviors).
	runCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	ec := newExecContext(runCtx, r, executionID, o)
	s := &scheduler{}

	startedAt := time.Now()
	ec.bus.Publish(emit.Event{
		Type:        emit.WorkflowStart,
		ExecutionID: executionID,
		Timestamp:   startedAt,
		Input:       input,
	})

	threadID := newThreadID()
	s.scheduleNode(ec, threadID, r.plan.start, input)

	poolErr := ec.pool.WaitForCompletion(runCtx)

	result := s.assembleResult(ec, poolErr)

	ec.bus.Publish(emit.Event{
		Type:        emit.WorkflowEnd,
		ExecutionID: executionID,
		Timestamp:   time.Now(),
		Output:      result.Output,
		IsOK:        result.IsOK,
		Error:       result.Error,
		Histories:   result.History,
	})

	return result, nil
}

func (s *scheduler) assembleResult(ec *execContext, poolErr error) *Result {
	ec.historyMu.Lock()
	history := append([]HistoryRecord(nil), ec.history...)
	ec.historyMu.Unlock()

	res := &Result{ExecutionID: ec.executionID, History: history}

	if poolErr != nil {
		res.IsOK = false
		if runCtxErr := ec.runCtx.Err(); runCtxErr != nil && poolErr == runCtxErr {
			res.Error = &ExecError{Code: CodeExecutionTimeout, Message: poolErr.Error()}
		} else if ee, ok := poolErr.(*ExecError); ok {
			res.Error = ee
		} else {
			res.Error = newExecError(CodeThreadPoolFailure, "", poolErr)
		}
		return res
	}

	res.IsOK = true
	if len(history) == 0 {
		return res
	}

	if ec.plan.end != "" {
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Name == ec.plan.end {
				res.Output = history[i].Output
				return res
			}
		}
	}
	res.Output = history[len(history)-1].Output
	return res
}

// scheduleNode submits the full node-executor pass for name on threadID
// as a single task to the thread pool, matching spec.md §4.5's
// schedule_node procedure.
func (s *scheduler) scheduleNode(ec *execContext, threadID, name string, input any) {
	ec.pool.Schedule(threadID, func() error {
		return s.runStep(ec, threadID, name, input)
	})
	if ec.metrics != nil {
		ec.metrics.observeActiveLanes(ec.pool.LaneCount())
	}
}

func (s *scheduler) runStep(ec *execContext, threadID, name string, input any) error {
	finalName, finalInput, ran, err := runMiddlewareChain(ec.runCtx, ec.middlewares, name, input)
	if err != nil {
		return err
	}
	if !ran {
		// A middleware vetoed the step: the node never executes, and no
		// further work is dispatched on this branch.
		return nil
	}

	decl, ok := ec.plan.nodes[finalName]
	if !ok {
		return &ExecError{Code: CodeNodeExecutionFailed, NodeID: finalName, Message: "node not found"}
	}

	remaining := ec.visitsRemaining.Add(-1)
	if remaining < 0 {
		return &ExecError{Code: CodeMaxNodeVisitsExceeded, NodeID: finalName, Context: map[string]any{"max_node_visits": ec.opts.MaxNodeVisits}}
	}

	if ec.metrics != nil {
		ec.metrics.observeVisit(ec.opts.MaxNodeVisits - remaining)
	}

	successors, output, err := s.execNode(ec, threadID, decl, finalInput)
	if err != nil {
		return err
	}

	ids := allocateThreadIDs(threadID, len(successors))
	for i, succ := range successors {
		target, ok := ec.plan.nodes[succ]
		if !ok {
			return &ExecError{Code: CodeNodeExecutionFailed, NodeID: succ, Message: "successor not declared"}
		}
		if target.kind == KindMerge {
			s.deliverMerge(ec, succ, decl.name, output, ids[i])
			continue
		}
		s.scheduleNode(ec, ids[i], succ, output)
	}
	return nil
}

// allocateThreadIDs implements the thread_id allocation rule: the
// current thread_id is reused for the first successor, and each
// additional successor (fan-out sibling) gets a freshly minted id.
func allocateThreadIDs(current string, k int) []string {
	if k == 0 {
		return nil
	}
	ids := make([]string, k)
	ids[0] = current
	for i := 1; i < k; i++ {
		ids[i] = newThreadID()
	}
	return ids
}

// deliverMerge records one branch's output into mergeName's merge state
// and, once every declared branch has delivered, schedules the merge
// node itself using tid (the thread id allocated to whichever delivery
// happens to complete the merge). The check-and-dispatch is atomic
// under mergeMu so a merge node runs exactly once regardless of how many
// branches race to deliver concurrently.
func (s *scheduler) deliverMerge(ec *execContext, mergeName, source string, output any, tid string) {
	ec.mergeMu.Lock()
	slots := ec.mergeState[mergeName]
	allDone := true
	for _, sl := range slots {
		if sl.source == source {
			sl.output = output
			sl.pending = false
		}
		if sl.pending {
			allDone = false
		}
	}
	var mergeInput map[string]any
	if allDone {
		mergeInput = make(map[string]any, len(slots))
		for _, sl := range slots {
			mergeInput[sl.source] = sl.output
		}
	}
	ec.mergeMu.Unlock()

	if ec.metrics != nil {
		ec.metrics.observeMergeDelivery(allDone)
	}

	if allDone {
		s.scheduleNode(ec, tid, mergeName, mergeInput)
	}
}
