package flow

import (
	"context"
	"sync"
	"sync/atomic"
)

// task is one unit of scheduled work: a full node-executor pass for one
// node on one logical thread.
type task func() error

// lane is a single logical thread's serial FIFO work queue: one
// dedicated goroutine drains it in submission order, so everything
// scheduled on the same thread_id runs strictly sequentially, while
// other lanes run concurrently. It is an unbounded condvar-guarded queue
// rather than a fixed-size channel, since scheduling must never block
// or drop work regardless of how many nodes are in flight on a lane.
type lane struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	closed bool
}

func newLane() *lane {
	l := &lane{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *lane) push(t task) {
	l.mu.Lock()
	l.queue = append(l.queue, t)
	l.cond.Signal()
	l.mu.Unlock()
}

func (l *lane) close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

func (l *lane) run(p *ThreadPool) {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			return
		}
		t := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		if p.isTerminal() {
			p.wg.Done()
			continue
		}
		if err := t(); err != nil {
			p.fail(err)
		}
		p.wg.Done()
	}
}

// ThreadPool schedules tasks onto named logical threads (thread_ids),
// guaranteeing per-thread FIFO ordering and cross-thread concurrency,
// with a single completion latch and first-error-wins semantics: once
// any task returns an error, the pool goes terminal: every further
// Schedule call is silently dropped, and tasks still waiting in a lane's
// queue are skipped without running. A task that is already running
// finishes normally, since node bodies are never preempted.
//
// This mirrors the contract golang.org/x/sync/errgroup.Group provides
// (Go/Wait, first-error-wins, safe to call recursively from within a
// running task) without literally wrapping it, since errgroup has no
// notion of per-key ordering and a bare errgroup.Go call per task would
// let sibling tasks on the same thread_id run out of order.
type ThreadPool struct {
	mu    sync.Mutex
	lanes map[string]*lane

	wg sync.WaitGroup

	errOnce  sync.Once
	firstErr error
	terminal atomic.Bool
}

// NewThreadPool returns an empty pool.
func NewThreadPool() *ThreadPool {
	return &ThreadPool{lanes: make(map[string]*lane)}
}

// Schedule enqueues t onto threadID's lane. If the pool has already gone
// terminal (a prior task failed, or the run's context was cancelled),
// the call is a silent no-op.
func (p *ThreadPool) Schedule(threadID string, t task) {
	if p.terminal.Load() {
		return
	}

	p.mu.Lock()
	l, ok := p.lanes[threadID]
	if !ok {
		l = newLane()
		p.lanes[threadID] = l
		go l.run(p)
	}
	p.mu.Unlock()

	p.wg.Add(1)
	l.push(t)
}

func (p *ThreadPool) fail(err error) {
	p.errOnce.Do(func() {
		p.firstErr = err
		p.terminal.Store(true)
	})
}

func (p *ThreadPool) isTerminal() bool { return p.terminal.Load() }

// LaneCount reports the number of logical thread lanes created so far on
// this pool (a lane is created lazily on its thread_id's first Schedule
// call and is never removed once created).
func (p *ThreadPool) LaneCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

func (p *ThreadPool) closeLanes() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.lanes {
		l.close()
	}
}

// WaitForCompletion blocks until every scheduled task (including tasks
// scheduled by other tasks while they ran) has completed, then returns
// the first error any task produced, or nil. If ctx is cancelled first,
// WaitForCompletion returns ctx.Err() immediately and marks the pool
// terminal, but does not wait for in-flight tasks to stop — they drain
// in the background and close their lanes once finished, since node
// bodies are never forcibly preempted.
func (p *ThreadPool) WaitForCompletion(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
		p.closeLanes()
	}()

	select {
	case <-done:
		return p.firstErr
	case <-ctx.Done():
		p.fail(ctx.Err())
		return ctx.Err()
	}
}
