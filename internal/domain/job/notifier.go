package job

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaiterRequired is returned by NewNotifier without a Waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until a queue topic signals that work may be available.
type Waiter interface {
	WaitForNotification(ctx context.Context, topic string) error
}

// Notifier fans queue wakeups out to subscribed workers. Subscribe returns an
// unsubscribe func and a channel that receives coalesced wakeups and is closed
// on unsubscribe or StopAll.
type Notifier interface {
	Subscribe(topic string) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure DefaultNotifier.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow bounds one WaitForNotification call; subscribers are woken
	// when it lapses so a lost signal costs at most one window. Default 1m.
	WaitWindow time.Duration
	// Backoff is the pause after a failed wait. Default 250ms.
	Backoff time.Duration
}

// DefaultNotifier runs one Waiter loop per topic while that topic has subscribers.
type DefaultNotifier struct {
	opts NotifierOptions

	mu    sync.Mutex
	feeds map[string]*topicFeed
}

type topicFeed struct {
	stop context.CancelFunc
	subs map[chan struct{}]struct{}
}

// NewNotifier validates opts and applies defaults.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	if opts.WaitWindow <= 0 {
		opts.WaitWindow = time.Minute
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 250 * time.Millisecond
	}
	return &DefaultNotifier{opts: opts, feeds: make(map[string]*topicFeed)}, nil
}

// Subscribe registers a wakeup channel for topic, starting the topic loop on first use.
func (n *DefaultNotifier) Subscribe(topic string) (func(), <-chan struct{}) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	feed, ok := n.feeds[topic]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		feed = &topicFeed{stop: cancel, subs: make(map[chan struct{}]struct{})}
		n.feeds[topic] = feed
		go n.run(ctx, topic)
	}
	feed.subs[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { n.unsubscribe(topic, ch) }) }, ch
}

// StopAll ends every topic loop and closes every subscriber channel.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	feeds := n.feeds
	n.feeds = make(map[string]*topicFeed)
	n.mu.Unlock()

	for _, feed := range feeds {
		feed.close()
	}
}

func (n *DefaultNotifier) unsubscribe(topic string, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	feed, ok := n.feeds[topic]
	if !ok {
		return
	}
	if _, ok := feed.subs[ch]; !ok {
		return
	}
	delete(feed.subs, ch)
	closeDrained(ch)
	if len(feed.subs) == 0 {
		feed.stop()
		delete(n.feeds, topic)
	}
}

func (n *DefaultNotifier) run(ctx context.Context, topic string) {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, n.opts.WaitWindow)
		err := n.opts.Waiter.WaitForNotification(waitCtx, topic)
		cancel()
		if ctx.Err() != nil {
			return
		}
		n.wake(topic)

		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(n.opts.Backoff):
			}
		}
	}
}

func (n *DefaultNotifier) wake(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	feed, ok := n.feeds[topic]
	if !ok {
		return
	}
	for ch := range feed.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (f *topicFeed) close() {
	f.stop()
	for ch := range f.subs {
		closeDrained(ch)
	}
	f.subs = nil
}

// closeDrained discards a pending wakeup so receivers see the close at once.
func closeDrained(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
	close(ch)
}

var _ Notifier = (*DefaultNotifier)(nil)
