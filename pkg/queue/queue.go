// Package queue implements RoleQueue, the unbounded FIFO inbox each agent role
// owns. It is the only state shared between the scheduler loop and the cycle
// driver, so every operation is safe for concurrent use and none blocks.
package queue

import (
	"sync"
	"sync/atomic"

	"goldtier/pkg/protocol"
)

// RoleQueue is an unbounded, mutex-protected FIFO of work items.
type RoleQueue struct {
	role protocol.Role

	mu    sync.Mutex
	items []*protocol.WorkItem

	// size mirrors len(items) so Size never takes the lock.
	size atomic.Int64
}

// New creates an empty queue for role.
func New(role protocol.Role) *RoleQueue {
	return &RoleQueue{role: role}
}

// Role returns the role that owns the queue.
func (q *RoleQueue) Role() protocol.Role {
	return q.role
}

// Enqueue appends item. It never blocks and never fails. Nil items are ignored.
func (q *RoleQueue) Enqueue(item *protocol.WorkItem) {
	if item == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.size.Add(1)
	q.mu.Unlock()
}

// DrainAll removes and returns every item present at the moment of the call,
// in insertion order. Items enqueued after the swap land in the fresh backing
// slice and are left for the next drain.
func (q *RoleQueue) DrainAll() []*protocol.WorkItem {
	q.mu.Lock()
	out := q.items
	q.items = nil
	q.size.Add(-int64(len(out)))
	q.mu.Unlock()
	return out
}

// Size returns the number of queued items.
func (q *RoleQueue) Size() int {
	return int(q.size.Load())
}

// Peek returns copies of the queued items without removing them.
func (q *RoleQueue) Peek() []protocol.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]protocol.WorkItem, len(q.items))
	for i, it := range q.items {
		out[i] = *it
	}
	return out
}
