package ratelimit

import (
	"container/heap"
	"context"
	"time"
)

// Func is the unit of work executed under the limiter, typically one
// outbound provider call.
type Func func(ctx context.Context) (any, error)

// outcome is the terminal result delivered to a waiting caller.
type outcome struct {
	value any
	err   error
}

// item is one queued unit of work.
type item struct {
	id         string
	priority   int
	seq        uint64 // enqueue order, breaks priority ties (stable FIFO)
	enqueuedAt time.Time
	retries    int
	ctx        context.Context
	run        Func
	done       chan outcome // buffered(1) so delivery never blocks
}

// priorityQueue orders items by ascending priority, then enqueue order.
type priorityQueue []*item

var _ heap.Interface = (*priorityQueue)(nil)

func (q priorityQueue) Len() int { return len(q) }

func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *priorityQueue) Push(x any) { *q = append(*q, x.(*item)) }

func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}
