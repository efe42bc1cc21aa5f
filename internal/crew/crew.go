// Package crew implements a fixed-size pool of long-lived workers that
// cooperatively search a directory tree for a substring.
//
// Workers share one FIFO work queue. Directories are expanded into one work
// item per entry and fed back into the same queue, so the amount of work is
// discovered while the run is in progress. Completion is detected with a live
// item count: it is incremented when an item is enqueued and decremented only
// after the worker holding the item is completely done with it, including
// enqueueing its children. The count reaches zero exactly when no item is
// queued and no worker holds one.
//
// A Crew is created once and reused for any number of sequential runs:
//
//	c, err := crew.New(4, sink, crew.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	summary, err := c.Start(ctx, "/src", "TODO")
//
// Start blocks until every entry reachable from the root has produced an
// outcome. Only one run may be active at a time; a concurrent Start fails with
// ErrBusy.
package crew

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harrison/crew/internal/models"
)

const (
	// DefaultCapacity is the maximum crew size when no capacity option is given.
	DefaultCapacity = 64

	// DefaultMaxPathLength bounds the length of any path handed to a worker.
	DefaultMaxPathLength = 4096
)

// Crew owns the worker pool and the work queue.
type Crew struct {
	size     int
	capacity int
	maxPath  int

	workers []*worker
	queue   *workQueue
	sink    Sink
	logger  Logger
	wg      sync.WaitGroup

	// Guarded by queue.mu.
	running bool
	closed  bool

	// trace is false when no logger wants worker diagnostics.
	trace bool

	// abortedRun holds the query of the last run whose context was cancelled.
	// Workers compare it with their item's query, so a late cancellation of a
	// finished run never touches the next one.
	abortedRun atomic.Pointer[models.Query]

	tallyMu sync.Mutex
	tally   models.RunSummary
}

// Option configures a Crew.
type Option func(*Crew)

// WithCapacity sets the fixed pool capacity the crew size is validated against.
func WithCapacity(capacity int) Option {
	return func(c *Crew) {
		c.capacity = capacity
	}
}

// WithLogger sets the logger receiving run events and worker diagnostics.
func WithLogger(logger Logger) Option {
	return func(c *Crew) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxPathLength sets the longest path a work item may carry.
// Values below 1 keep the default.
func WithMaxPathLength(n int) Option {
	return func(c *Crew) {
		if n > 0 {
			c.maxPath = n
		}
	}
}

// New validates size against the crew capacity and starts exactly size
// workers, each immediately waiting for work. A nil sink discards outcomes.
func New(size int, sink Sink, opts ...Option) (*Crew, error) {
	c := &Crew{
		size:     size,
		capacity: DefaultCapacity,
		maxPath:  DefaultMaxPathLength,
		queue:    newWorkQueue(),
		sink:     sink,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if size > c.capacity {
		return nil, &CapacityError{Requested: size, Capacity: c.capacity}
	}
	if c.sink == nil {
		c.sink = SinkFunc(func(models.Outcome) {})
	}
	c.trace = traceEnabled(c.logger)

	c.workers = make([]*worker, size)
	for i := range c.workers {
		c.workers[i] = &worker{index: i, crew: c}
	}
	c.wg.Add(size)
	for _, w := range c.workers {
		go w.run()
	}

	return c, nil
}

// Size returns the number of workers in the crew.
func (c *Crew) Size() int {
	return c.size
}

// Capacity returns the fixed pool capacity.
func (c *Crew) Capacity() int {
	return c.capacity
}

// Start runs one traversal from root looking for term and blocks until it
// is complete.
//
// It fails with ErrBusy if a previous run has not drained, with ErrClosed
// after Close, and with ErrInvalidArgument for an empty root or term or a root
// longer than the path limit. None of these failures enqueue anything.
//
// Cancelling ctx aborts the run: items still queued are discarded without
// being processed, items in flight complete, and Start returns once the queue
// has drained, with summary.Aborted set and the context error.
func (c *Crew) Start(ctx context.Context, root, term string) (models.RunSummary, error) {
	if root == "" {
		return models.RunSummary{}, fmt.Errorf("%w: root path is empty", ErrInvalidArgument)
	}
	if term == "" {
		return models.RunSummary{}, fmt.Errorf("%w: search term is empty", ErrInvalidArgument)
	}
	if len(root) > c.maxPath {
		return models.RunSummary{}, fmt.Errorf("%w: root path is longer than %d bytes", ErrInvalidArgument, c.maxPath)
	}

	q := c.queue
	q.mu.Lock()
	if c.closed {
		q.mu.Unlock()
		return models.RunSummary{}, ErrClosed
	}
	if c.running || q.live > 0 {
		q.mu.Unlock()
		return models.RunSummary{}, ErrBusy
	}
	c.running = true
	q.peak = 0

	query := models.NewQuery(uuid.NewString(), root, term)
	c.resetTally(query)
	stop := context.AfterFunc(ctx, func() { c.abort(query) })
	if ctx.Err() != nil {
		c.abort(query)
	}

	c.logger.LogRunStart(query, c.size)
	q.pushLocked(models.NewWorkItem(root, query))
	q.waitDrainedLocked()

	// The tally is read before running is cleared so the next Start cannot
	// reset it first.
	stop()
	summary := c.takeTally()
	c.running = false
	q.mu.Unlock()

	c.logger.LogRunComplete(summary)

	if summary.Aborted {
		return summary, fmt.Errorf("run %s aborted: %w", summary.RunID, context.Cause(ctx))
	}
	return summary, nil
}

// Close stops every worker and waits for them to exit. Close fails with
// ErrBusy while a run is active; calling it again after success is a no-op.
func (c *Crew) Close() error {
	q := c.queue
	q.mu.Lock()
	if c.closed {
		q.mu.Unlock()
		return nil
	}
	if c.running || q.live > 0 {
		q.mu.Unlock()
		return ErrBusy
	}
	c.closed = true
	for range c.workers {
		q.pushLocked(models.NewStopItem())
	}
	q.mu.Unlock()

	c.wg.Wait()
	return nil
}

// Stats is a point-in-time view of the crew's queue.
type Stats struct {
	Workers    int  // Crew size
	Capacity   int  // Fixed pool capacity
	Live       int  // Items queued or in flight
	Queued     int  // Items waiting in the queue
	PeakQueued int  // Deepest queue seen during the current or last run
	Running    bool // A run is active
	Closed     bool // Close has completed
}

// Stats returns a snapshot of the queue state.
func (c *Crew) Stats() Stats {
	q := c.queue
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Workers:    c.size,
		Capacity:   c.capacity,
		Live:       q.live,
		Queued:     len(q.items),
		PeakQueued: q.peak,
		Running:    c.running,
		Closed:     c.closed,
	}
}

// abort makes workers discard the remaining items of the run searching q.
func (c *Crew) abort(q *models.Query) {
	c.abortedRun.Store(q)
}

// isAborted reports whether item belongs to a cancelled run.
func (c *Crew) isAborted(item *models.WorkItem) bool {
	return c.abortedRun.Load() == item.Query
}

func (c *Crew) resetTally(q *models.Query) {
	c.tallyMu.Lock()
	defer c.tallyMu.Unlock()

	c.tally = models.RunSummary{
		RunID:     q.RunID,
		Root:      q.Root,
		Term:      q.Term,
		Workers:   c.size,
		StartedAt: q.StartedAt,
	}
}

func (c *Crew) takeTally() models.RunSummary {
	c.tallyMu.Lock()
	defer c.tallyMu.Unlock()

	c.tally.FinishedAt = time.Now()
	return c.tally
}

// record counts o into the run tally and hands it to the sink.
func (c *Crew) record(o models.Outcome) {
	c.tallyMu.Lock()
	c.tally.Add(o)
	c.tallyMu.Unlock()

	c.sink.Record(o)
}

// discard notes that a queued item was dropped because the run was aborted.
func (c *Crew) discard() {
	c.tallyMu.Lock()
	c.tally.Aborted = true
	c.tallyMu.Unlock()
}
