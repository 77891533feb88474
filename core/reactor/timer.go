package reactor

import (
	"container/heap"
	"time"

	"github.com/searchktools/reactor-server/core/pools"
)

// timerEntry is one scheduled task. seq breaks deadline ties so that timers
// sharing a deadline fire in the order they were added.
type timerEntry struct {
	at   time.Time
	seq  uint64
	task pools.Task
}

type timerQueue []*timerEntry

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) { *q = append(*q, x.(*timerEntry)) }

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

func (q *timerQueue) push(e *timerEntry) { heap.Push(q, e) }

func (q *timerQueue) pop() *timerEntry { return heap.Pop(q).(*timerEntry) }

func (q timerQueue) peek() *timerEntry { return q[0] }
