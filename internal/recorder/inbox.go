package recorder

import "sync"

// inbox is the ordered event queue between hub callbacks and Run. Media events are capped
// at maxMedia pending and dropped beyond it; lifecycle events are always accepted.
type inbox struct {
	mu       sync.Mutex
	items    []any
	media    int
	maxMedia int
	wake     chan struct{}
}

func newInbox(maxMedia int) *inbox {
	return &inbox{maxMedia: maxMedia, wake: make(chan struct{}, 1)}
}

// push appends ev and reports whether it was kept.
func (q *inbox) push(ev any, droppable bool) bool {
	q.mu.Lock()
	if droppable {
		if q.media >= q.maxMedia {
			q.mu.Unlock()
			return false
		}
		q.media++
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns everything pending, in arrival order.
func (q *inbox) take() []any {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	q.media = 0
	return out
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
