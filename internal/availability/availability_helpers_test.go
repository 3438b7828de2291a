package availability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var errBackendDown = errors.New("backend down")

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memAdapter is an in-memory SyncAdapter with switchable failures.
type memAdapter struct {
	mu        sync.Mutex
	records   map[string]availability.Record
	readErr   error
	writeErr  error
	writes    []availability.Record
	block     chan struct{}
	panicking bool
}

func newMemAdapter() *memAdapter {
	return &memAdapter{records: make(map[string]availability.Record)}
}

func (a *memAdapter) put(rec availability.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[rec.UserID] = rec
}

func (a *memAdapter) get(userID string) (availability.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[userID]
	return rec, ok
}

func (a *memAdapter) writeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.writes)
}

func (a *memAdapter) ReadStatus(ctx context.Context, userID string) (availability.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.readErr != nil {
		return availability.Record{}, a.readErr
	}
	rec, ok := a.records[userID]
	if !ok {
		return availability.Record{}, availability.ErrNoRecord
	}
	return rec, nil
}

func (a *memAdapter) WriteStatus(ctx context.Context, userID string, rec availability.Record) error {
	a.mu.Lock()
	block := a.block
	a.mu.Unlock()
	if block != nil {
		<-block
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.panicking {
		panic("driver exploded")
	}
	a.writes = append(a.writes, rec)
	if a.writeErr != nil {
		return a.writeErr
	}
	a.records[userID] = rec
	return nil
}
