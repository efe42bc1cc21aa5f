package crew

import (
	"fmt"
	"sync"

	"github.com/harrison/crew/internal/models"
)

// workQueue is the unbounded FIFO shared by all workers of a crew.
//
// live counts every work item that exists right now, whether it sits in items
// or is held by a worker mid-processing. It is incremented on enqueue and
// decremented on finish, so it reaches zero exactly when the run is complete.
// Stop sentinels are queued like work but never counted.
type workQueue struct {
	mu        sync.Mutex
	available *sync.Cond // len(items) > 0
	drained   *sync.Cond // live == 0

	items []*models.WorkItem
	live  int
	peak  int // deepest len(items) seen since the last reset
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.available = sync.NewCond(&q.mu)
	q.drained = sync.NewCond(&q.mu)
	return q
}

// enqueue appends item and wakes one waiting worker. It never blocks on work.
func (q *workQueue) enqueue(item *models.WorkItem) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushLocked(item)
}

// pushLocked appends item; q.mu must be held. Every push is paired with
// exactly one Signal so that back-to-back pushes wake as many workers as
// there are items. Returns the live count after the push.
func (q *workQueue) pushLocked(item *models.WorkItem) int {
	q.items = append(q.items, item)
	if !item.IsStop() {
		q.live++
	}
	if len(q.items) > q.peak {
		q.peak = len(q.items)
	}
	q.available.Signal()
	return q.live
}

// dequeue blocks until an item is available, then removes and returns the
// head. The item stays counted in live until finish is called for it.
func (q *workQueue) dequeue() (*models.WorkItem, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.available.Wait()
	}

	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// Drop the drained backing array instead of letting it creep forward.
		q.items = nil
	}
	return item, q.live
}

// finish retires one in-flight item and wakes the run waiter when the count
// reaches zero. Returns the live count after the decrement.
func (q *workQueue) finish() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.live--
	if q.live < 0 {
		panic(fmt.Sprintf("crew: live work count dropped below zero (%d)", q.live))
	}
	if q.live == 0 {
		q.drained.Broadcast()
	}
	return q.live
}

// waitDrainedLocked blocks until live is zero; q.mu must be held.
func (q *workQueue) waitDrainedLocked() {
	for q.live > 0 {
		q.drained.Wait()
	}
}
