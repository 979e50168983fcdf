package notify

import (
	"context"
	"sync"
)

// MemoryNotifier is an in-process Notifier used by tests and single-node
// deployments without Redis.
type MemoryNotifier struct {
	mu        sync.Mutex
	listeners []chan Change
}

// NewMemoryNotifier creates an empty MemoryNotifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

// Publish delivers under the lock so a listener channel is never written
// after its Listen context removed and closed it. Channels are buffered; a
// full listener drops the event, which at-least-once consumers tolerate.
func (n *MemoryNotifier) Publish(ctx context.Context, change Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.listeners {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

func (n *MemoryNotifier) Listen(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, 16)
	n.mu.Lock()
	n.listeners = append(n.listeners, ch)
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		for i, l := range n.listeners {
			if l == ch {
				n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
				break
			}
		}
		close(ch)
		n.mu.Unlock()
	}()
	return ch, nil
}

func (n *MemoryNotifier) Close() error {
	return nil
}

// Compile-time check that MemoryNotifier implements Notifier.
var _ Notifier = (*MemoryNotifier)(nil)
