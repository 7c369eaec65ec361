package job

import (
	"context"
	"sync"
)

// LocalWaiter is an in-process Waiter. Signal wakes every goroutine currently
// blocked in WaitForNotification for the topic.
type LocalWaiter struct {
	mu      sync.Mutex
	waiters map[string]chan struct{}
}

// NewLocalWaiter constructs an empty LocalWaiter.
func NewLocalWaiter() *LocalWaiter {
	return &LocalWaiter{waiters: make(map[string]chan struct{})}
}

// Signal wakes waiters on topic.
func (w *LocalWaiter) Signal(topic string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ch, ok := w.waiters[topic]; ok {
		close(ch)
		delete(w.waiters, topic)
	}
}

// WaitForNotification blocks until Signal(topic) or ctx ends.
func (w *LocalWaiter) WaitForNotification(ctx context.Context, topic string) error {
	w.mu.Lock()
	ch, ok := w.waiters[topic]
	if !ok {
		ch = make(chan struct{})
		w.waiters[topic] = ch
	}
	w.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Waiter = (*LocalWaiter)(nil)
