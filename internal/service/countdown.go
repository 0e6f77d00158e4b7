package service

import (
	"sync"
	"time"
)

// Ticker is the tick source of a Countdown. It exists so tests can drive
// the countdown without waiting on the wall clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the production TickerFactory.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Countdown decrements the remaining seconds once per tick and calls
// onExpire exactly once when it reaches zero. A tick already being
// delivered when Cancel is called may still run its callbacks, so owners
// re-check their own state inside them.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	started   bool
	stopped   bool

	newTicker TickerFactory
	onTick    func(remaining int)
	onExpire  func()

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCountdown creates a countdown of seconds. Either callback may be nil.
func NewCountdown(seconds int, newTicker TickerFactory, onTick func(int), onExpire func()) *Countdown {
	if newTicker == nil {
		newTicker = NewTimeTicker
	}
	return &Countdown{
		remaining: seconds,
		newTicker: newTicker,
		onTick:    onTick,
		onExpire:  onExpire,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the countdown goroutine. Calling Start twice is a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	t := c.newTicker(time.Second)
	go c.run(t)
}

// Cancel stops the countdown. It does not wait for the goroutine, so it is
// safe to call from inside onExpire.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	c.stopped = true
	started := c.started
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	if !started {
		c.closeDone()
	}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining < 0 {
		return 0
	}
	return c.remaining
}

// Done is closed once the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

func (c *Countdown) run(t Ticker) {
	defer c.closeDone()
	defer t.Stop()

	if c.expireIfDue() {
		return
	}

	for {
		select {
		case <-c.stop:
			return
		case <-t.C():
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			c.remaining--
			remaining := c.remaining
			if remaining <= 0 {
				c.remaining = 0
				c.stopped = true
			}
			c.mu.Unlock()

			if c.onTick != nil {
				c.onTick(remaining)
			}
			if remaining <= 0 {
				if c.onExpire != nil {
					c.onExpire()
				}
				return
			}
		}
	}
}

// expireIfDue handles a countdown started with no time left.
func (c *Countdown) expireIfDue() bool {
	c.mu.Lock()
	if c.stopped || c.remaining > 0 {
		stopped := c.stopped
		c.mu.Unlock()
		return stopped
	}
	c.remaining = 0
	c.stopped = true
	c.mu.Unlock()

	if c.onExpire != nil {
		c.onExpire()
	}
	return true
}

func (c *Countdown) closeDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
