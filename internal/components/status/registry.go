// Package status runs one availability machine per signed-in user and
// serves the status card endpoints on top of them.
package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/activities"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// Config tunes the machines and countdown streams.
type Config struct {
	RepairStale  bool
	WriteTimeout time.Duration
	TickInterval time.Duration
	Clock        availability.Clock
}

// View is what the card shows after entering the screen.
type View struct {
	State    availability.State
	Activity string
	Stale    bool
}

// Registry owns the per-user machines. Machines are created on first use and
// live for the life of the process.
type Registry struct {
	adapter    availability.SyncAdapter
	reconciler *availability.Reconciler
	cfg        Config
	onFree     func(availability.FreeEvent)
	log        *slog.Logger

	mu       sync.Mutex
	machines map[string]*availability.Machine
}

// NewRegistry creates a registry. onFree, if set, is registered on every
// machine.
func NewRegistry(adapter availability.SyncAdapter, cfg Config, onFree func(availability.FreeEvent), log *slog.Logger) *Registry {
	log = logutil.NoopIfNil(log)
	return &Registry{
		adapter: adapter,
		reconciler: availability.NewReconciler(adapter, log,
			availability.WithReconcileClock(cfg.Clock),
			availability.WithRepairStale(cfg.RepairStale),
		),
		cfg:      cfg,
		onFree:   onFree,
		log:      log,
		machines: make(map[string]*availability.Machine),
	}
}

// Machine returns the machine for userID, creating it if needed. A new
// machine shows Busy until Enter reconciles it.
func (r *Registry) Machine(userID string) *availability.Machine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.machines[userID]; ok {
		return m
	}
	m := availability.NewMachine(userID, r.adapter, r.log.With("user_id", userID),
		availability.WithClock(r.cfg.Clock),
		availability.WithWriteTimeout(r.cfg.WriteTimeout),
	)
	m.SetActivity(activities.Default)
	if r.onFree != nil {
		m.OnFree(r.onFree)
	}
	r.machines[userID] = m
	return m
}

// Enter reconciles userID against the store and loads the result. A toggle
// that is pending, or that started during the read, wins over the read.
func (r *Registry) Enter(ctx context.Context, userID string) View {
	m := r.Machine(userID)
	if m.State().Pending {
		return View{State: m.State(), Activity: m.Activity()}
	}
	gen := m.Generation()
	eff := r.reconciler.Reconcile(ctx, userID)
	if !m.LoadIfUnchanged(eff, gen) {
		return View{State: m.State(), Activity: m.Activity()}
	}
	return View{State: m.State(), Activity: m.Activity(), Stale: eff.Stale}
}

// TickInterval returns the countdown cadence.
func (r *Registry) TickInterval() time.Duration {
	return r.cfg.TickInterval
}

// Clock returns the registry clock.
func (r *Registry) Clock() availability.Clock {
	return r.cfg.Clock
}

// Wait blocks until every machine has settled its writes.
func (r *Registry) Wait() {
	r.mu.Lock()
	machines := make([]*availability.Machine, 0, len(r.machines))
	for _, m := range r.machines {
		machines = append(machines, m)
	}
	r.mu.Unlock()

	for _, m := range machines {
		m.Wait()
	}
}

// Announcer returns an OnFree hook that records the activity on the profile
// row and logs the announcement.
func Announcer(setActivity func(ctx context.Context, userID, activity string) error, log *slog.Logger) func(availability.FreeEvent) {
	log = logutil.NoopIfNil(log)
	return func(ev availability.FreeEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if ev.Activity != "" {
			if err := setActivity(ctx, ev.UserID, ev.Activity); err != nil {
				log.Warn("failed to record activity", "user_id", ev.UserID, "error", err)
			}
		}
		log.Info("user is free", "user_id", ev.UserID, "activity", ev.Activity, "expires_at", string(ev.ExpiresAt))
	}
}
