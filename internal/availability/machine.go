package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// State is the locally displayed availability.
type State struct {
	Status    Status
	ExpiresAt Expiry

	// Pending is set between an optimistic transition and the outcome of its
	// write.
	Pending bool

	// Loaded is false until reconciliation has fed the machine.
	Loaded bool
}

// FreeEvent is delivered to OnFree hooks after a Busy to Free transition has
// been persisted.
type FreeEvent struct {
	UserID    string
	ExpiresAt Expiry
	Activity  string
}

// Machine owns one user's Free/Busy state. Toggle applies the new state
// locally first and persists it in the background. When the latest write
// fails the machine falls back to the last state known to be stored.
type Machine struct {
	userID       string
	writer       Writer
	clock        Clock
	writeTimeout time.Duration
	log          *slog.Logger

	mu    sync.Mutex
	state State
	seq   uint64

	// committed is the newest state known to be stored: the last load or
	// the highest-numbered successful write.
	committed         State
	committedSeq      uint64
	committedActivity string
	announcedSeq      uint64

	activity string
	onFree   []func(FreeEvent)
	subs     map[int]chan State
	nextSub  int

	inflight sync.WaitGroup
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClock sets the clock used to compute expiries.
func WithClock(c Clock) MachineOption {
	return func(m *Machine) { m.clock = c }
}

// WithWriteTimeout bounds each background write. Zero means no bound.
func WithWriteTimeout(d time.Duration) MachineOption {
	return func(m *Machine) { m.writeTimeout = d }
}

// NewMachine creates a machine for userID. It starts Busy and not loaded.
func NewMachine(userID string, writer Writer, log *slog.Logger, opts ...MachineOption) *Machine {
	m := &Machine{
		userID: userID,
		writer: writer,
		log:    logutil.NoopIfNil(log).With("user_id", userID),
		state:     State{Status: Busy},
		committed: State{Status: Busy},
		subs:      make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UserID returns the user this machine belongs to.
func (m *Machine) UserID() string { return m.userID }

// Load sets the initial state from reconciliation.
func (m *Machine) Load(eff Effective) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(eff)
}

// LoadIfIdle is Load unless a write is pending, in which case the optimistic
// state is kept. It reports whether eff was applied.
func (m *Machine) LoadIfIdle(eff Effective) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Pending {
		return false
	}
	m.loadLocked(eff)
	return true
}

// Generation counts toggles. Capture it before a slow read and pass it to
// LoadIfUnchanged.
func (m *Machine) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// LoadIfUnchanged is Load unless a write is pending or a toggle happened
// since gen was taken, in which case eff may predate it and is dropped.
func (m *Machine) LoadIfUnchanged(eff Effective, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Pending || m.seq != gen {
		return false
	}
	m.loadLocked(eff)
	return true
}

func (m *Machine) loadLocked(eff Effective) {
	m.state = State{Status: eff.Status, ExpiresAt: eff.ExpiresAt, Loaded: true}
	m.committed = m.state
	m.committedSeq = m.seq
	m.announcedSeq = m.seq
	m.notifyLocked()
}

// State returns the current local state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetActivity records the activity announced on the next Free transition.
func (m *Machine) SetActivity(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = name
}

// Activity returns the selected activity.
func (m *Machine) Activity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activity
}

// OnFree registers a hook run after a successful Busy to Free write.
// Hooks run on the write goroutine and must not call back into Toggle.
func (m *Machine) OnFree(fn func(FreeEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFree = append(m.onFree, fn)
}

// Subscribe returns a channel receiving the latest state after each change.
// Slow readers only see the most recent state. The returned func unsubscribes.
func (m *Machine) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan State, 1)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Toggle flips the status and returns the optimistic state. The write runs in
// the background and is not cancelled by ctx; call Wait to observe its
// outcome.
func (m *Machine) Toggle(ctx context.Context) State {
	m.mu.Lock()

	prev := m.state
	var rec Record
	if prev.Status == Free {
		rec = BusyRecord(m.userID)
	} else {
		rec = FreeRecord(m.userID, m.clock.Now())
	}

	m.seq++
	seq := m.seq
	m.state = State{Status: rec.Status, ExpiresAt: rec.ExpiresAt, Pending: true, Loaded: true}
	next := m.state
	activity := m.activity
	m.notifyLocked()

	m.inflight.Add(1)
	m.mu.Unlock()

	m.log.Debug("availability toggled", "status", string(rec.Status), "expires_at", string(rec.ExpiresAt))
	go m.persist(context.WithoutCancel(ctx), seq, rec, activity)
	return next
}

// Wait blocks until every write started by Toggle has settled.
func (m *Machine) Wait() {
	m.inflight.Wait()
}

func (m *Machine) persist(ctx context.Context, seq uint64, rec Record, activity string) {
	defer m.inflight.Done()

	if m.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.writeTimeout)
		defer cancel()
	}

	err := m.write(ctx, rec)
	written := State{Status: rec.Status, ExpiresAt: rec.ExpiresAt, Loaded: true}

	m.mu.Lock()
	if err == nil && seq > m.committedSeq {
		m.committed, m.committedSeq, m.committedActivity = written, seq, activity
	}

	latest := seq == m.seq
	switch {
	case latest && err == nil:
		m.state = written
	case latest:
		m.state = m.committed
		m.state.Loaded = true
	case err == nil && !m.state.Pending && m.committedSeq == seq:
		// Newer toggles already failed and fell back to an older state;
		// this write is now the newest stored one.
		m.state = written
	default:
		m.mu.Unlock()
		if err != nil {
			m.log.Warn("failed to persist superseded availability", "status", string(rec.Status), "error", err)
		}
		return
	}
	if err != nil {
		m.log.Warn("failed to persist availability, reverting", "status", string(rec.Status), "error", err)
	}
	m.notifyLocked()

	// Announce a stored Free once, when it becomes the shown state.
	var ev *FreeEvent
	if m.state.Status == Free && m.state == m.committed && m.committedSeq > m.announcedSeq {
		m.announcedSeq = m.committedSeq
		ev = &FreeEvent{UserID: m.userID, ExpiresAt: m.committed.ExpiresAt, Activity: m.committedActivity}
	}
	hooks := append([]func(FreeEvent){}, m.onFree...)
	m.mu.Unlock()

	if ev == nil {
		return
	}
	for _, fn := range hooks {
		fn(*ev)
	}
}

// write calls the writer, turning a panic into an error so it reverts like
// any other failure.
func (m *Machine) write(ctx context.Context, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("availability write panicked: %v", r)
		}
	}()
	return m.writer.WriteStatus(ctx, m.userID, rec)
}

func (m *Machine) notifyLocked() {
	s := m.state
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
