package availability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Display strings produced by the countdown.
const (
	ExpiredText = "00:00:00"
	ErrorText   = "Error fecha"
	StaticLabel = "Visible solo por 1 hora"
)

// DefaultTickInterval is the countdown refresh cadence.
const DefaultTickInterval = time.Second

// FormatRemaining renders d as HH:MM:SS. Hours are not capped; minutes and
// seconds are in [0,59]. Non-positive durations render as ExpiredText.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return ExpiredText
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// CountdownLabel prefixes a countdown value the way the status card shows it.
func CountdownLabel(text string) string {
	return "Libre por: " + text
}

// Remaining is the single-shot form of the countdown: the text the ticker
// would emit for expiry at now.
func Remaining(expiry Expiry, now time.Time) string {
	t, err := expiry.Time()
	if err != nil {
		return ErrorText
	}
	return FormatRemaining(t.Sub(now))
}

// Countdown emits the remaining time until an expiry once per interval.
// At most one tick loop is active per Countdown; Start cancels the previous
// loop and waits for it to exit before starting the next.
type Countdown struct {
	clock    Clock
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	expiry Expiry
}

// NewCountdown creates a countdown. A nil clock uses time.Now and a
// non-positive interval uses DefaultTickInterval.
func NewCountdown(clock Clock, interval time.Duration) *Countdown {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Countdown{clock: clock, interval: interval}
}

// Start begins a tick loop for expiry and returns its output channel.
// The first value is sent immediately. The channel closes after the terminal
// ExpiredText, after ErrorText for a malformed expiry, or when ctx is done or
// the loop is replaced by another Start or Stop.
func (c *Countdown) Start(ctx context.Context, expiry Expiry) <-chan string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	out := make(chan string)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.expiry = expiry

	go c.run(loopCtx, expiry, out, done)
	return out
}

// Stop cancels the active loop, if any, and waits for it to exit.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Current returns the expiry of the most recently started loop.
func (c *Countdown) Current() Expiry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiry
}

func (c *Countdown) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
	c.expiry = ""
}

func (c *Countdown) run(ctx context.Context, expiry Expiry, out chan<- string, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	send := func(v string) bool {
		select {
		case out <- v:
			return true
		case <-ctx.Done():
			return false
		}
	}

	expiresAt, err := expiry.Time()
	if err != nil {
		send(ErrorText)
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		remaining := expiresAt.Sub(c.clock.Now())
		if remaining <= 0 {
			send(ExpiredText)
			return
		}
		if !send(FormatRemaining(remaining)) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
