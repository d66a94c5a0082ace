package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Delayed is anything that can report when it becomes ready.
type Delayed interface {
	ReadyTime() time.Time
}

// DelayQueue releases items in ready-time order once their ready time has
// passed. Put is safe for many producers; Take may be called from several
// consumers and never hands the same item to two of them.
type DelayQueue[T Delayed] struct {
	clock clockwork.Clock

	mu     sync.Mutex
	items  entries[T]
	seq    uint64
	notify chan struct{}
}

func NewDelayQueue[T Delayed](clock clockwork.Clock) *DelayQueue[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DelayQueue[T]{clock: clock, notify: make(chan struct{})}
}

func (q *DelayQueue[T]) Put(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.items, entry[T]{value: item, readyAt: item.ReadyTime(), seq: q.seq})
	// wake every waiter so it re-reads the head
	close(q.notify)
	q.notify = make(chan struct{})
}

// Take blocks until the earliest item is ready and returns it. It returns
// ctx.Err() if ctx is cancelled first.
func (q *DelayQueue[T]) Take(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		wake := q.notify
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-wake:
			}
			continue
		}
		wait := q.items[0].readyAt.Sub(q.clock.Now())
		if wait <= 0 {
			e := heap.Pop(&q.items).(entry[T])
			q.mu.Unlock()
			return e.value, nil
		}
		q.mu.Unlock()

		timer := q.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-wake:
			timer.Stop()
		case <-timer.Chan():
		}
	}
}

func (q *DelayQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type entry[T any] struct {
	value   T
	readyAt time.Time
	seq     uint64
}

// entries implements heap.Interface ordered by (readyAt, seq).
type entries[T any] []entry[T]

func (e entries[T]) Len() int { return len(e) }

func (e entries[T]) Less(i, j int) bool {
	if e[i].readyAt.Equal(e[j].readyAt) {
		return e[i].seq < e[j].seq
	}
	return e[i].readyAt.Before(e[j].readyAt)
}

func (e entries[T]) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

func (e *entries[T]) Push(x any) { *e = append(*e, x.(entry[T])) }

func (e *entries[T]) Pop() any {
	old := *e
	n := len(old)
	it := old[n-1]
	var zero entry[T]
	old[n-1] = zero
	*e = old[:n-1]
	return it
}
