package keyboard

import "sync"

// keyQueue is an unbounded FIFO between a hook callback, which must never block, and the
// goroutine that runs the handler.
type keyQueue struct {
	mu    sync.Mutex
	keys  []Key
	ready chan struct{}
}

func newKeyQueue() *keyQueue {
	return &keyQueue{ready: make(chan struct{}, 1)}
}

// push appends k without blocking.
func (q *keyQueue) push(k Key) {
	q.mu.Lock()
	q.keys = append(q.keys, k)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain calls handler for every queued key, in order, until stop is closed.
func (q *keyQueue) drain(handler func(Key), stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-q.ready:
		}

		q.mu.Lock()
		batch := q.keys
		q.keys = nil
		q.mu.Unlock()

		for _, k := range batch {
			handler(k)
		}
	}
}
