package motion

import (
	"sync"
	"time"
)

// Source delivers ticks to a driver. Stop releases the underlying ticker or
// subscription and is safe to call more than once. The Ticks channel is never
// closed.
type Source interface {
	Ticks() <-chan Tick
	Stop()
}

// FrameClock emits frame ticks at a fixed interval. Frames are dropped rather
// than queued when the consumer falls behind, so the next delta simply grows.
type FrameClock struct {
	ticker *time.Ticker
	ch     chan Tick
	stop   chan struct{}
	once   sync.Once
}

func NewFrameClock(interval time.Duration) *FrameClock {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	c := &FrameClock{
		ticker: time.NewTicker(interval),
		ch:     make(chan Tick, 1),
		stop:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *FrameClock) run() {
	for {
		select {
		case <-c.stop:
			return
		case now := <-c.ticker.C:
			select {
			case c.ch <- Tick{At: now}:
			default:
			}
		}
	}
}

func (c *FrameClock) Ticks() <-chan Tick { return c.ch }

func (c *FrameClock) Stop() {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.stop)
	})
}

// FeedSource adapts a push-based position feed to a Source. Producers call
// Push and Fail from any goroutine; readings arriving while the buffer is full
// are dropped.
type FeedSource struct {
	ch          chan Tick
	unsubscribe func()

	mu      sync.Mutex
	stopped bool
}

// NewFeedSource returns a feed with the given buffer. unsubscribe, if set, is
// invoked once on Stop.
func NewFeedSource(buffer int, unsubscribe func()) *FeedSource {
	if buffer <= 0 {
		buffer = 16
	}
	return &FeedSource{ch: make(chan Tick, buffer), unsubscribe: unsubscribe}
}

// Push queues a fix and reports whether it was accepted.
func (f *FeedSource) Push(fix Fix) bool {
	return f.send(Tick{At: fix.Time, Fix: &fix})
}

// Fail queues a sensor error and reports whether it was accepted.
func (f *FeedSource) Fail(err error) bool {
	return f.send(Tick{At: time.Now(), Err: err})
}

func (f *FeedSource) send(t Tick) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return false
	}
	select {
	case f.ch <- t:
		return true
	default:
		return false
	}
}

func (f *FeedSource) Ticks() <-chan Tick { return f.ch }

func (f *FeedSource) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	unsub := f.unsubscribe
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
