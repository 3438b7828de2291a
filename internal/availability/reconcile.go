package availability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// Effective is the status the card should show after reconciling the
// persisted record with the current time.
type Effective struct {
	Status    Status
	ExpiresAt Expiry

	// Stale is set when the record still says Free but its expiry has passed.
	Stale bool
}

// Countdown reports whether a ticking countdown should be displayed.
// Free without an expiry shows StaticLabel instead.
func (e Effective) Countdown() bool {
	return e.Status == Free && !e.ExpiresAt.IsZero()
}

// Resolve applies the reconciliation rules to a record read at now.
//
// A Free record whose expiry cannot be parsed stays Free; the countdown will
// render ErrorText for it.
func Resolve(rec Record, now time.Time) Effective {
	if rec.Status != Free {
		return Effective{Status: Busy}
	}
	if rec.ExpiresAt.IsZero() {
		return Effective{Status: Free}
	}
	t, err := rec.ExpiresAt.Time()
	if err != nil {
		return Effective{Status: Free, ExpiresAt: rec.ExpiresAt}
	}
	if t.After(now) {
		return Effective{Status: Free, ExpiresAt: rec.ExpiresAt}
	}
	return Effective{Status: Busy, Stale: true}
}

// Reconciler runs reconciliation-on-load for one user.
type Reconciler struct {
	adapter     SyncAdapter
	clock       Clock
	log         *slog.Logger
	repairStale bool
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcileClock sets the clock used to judge expiry.
func WithReconcileClock(c Clock) ReconcilerOption {
	return func(r *Reconciler) { r.clock = c }
}

// WithRepairStale makes reconciliation write a Busy record back when it finds
// an expired Free record. Off by default: the stale row is left for the next
// toggle to overwrite.
func WithRepairStale(enabled bool) ReconcilerOption {
	return func(r *Reconciler) { r.repairStale = enabled }
}

// NewReconciler creates a Reconciler over adapter.
func NewReconciler(adapter SyncAdapter, log *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		adapter: adapter,
		log:     logutil.NoopIfNil(log),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile reads the record for userID and returns the effective status.
// It never fails: read errors and missing rows resolve to Busy.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) Effective {
	rec, err := r.adapter.ReadStatus(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			r.log.Debug("no availability record, defaulting to busy", "user_id", userID)
		} else {
			r.log.Error("failed to load availability", "user_id", userID, "error", err)
		}
		return Effective{Status: Busy}
	}

	eff := Resolve(rec, r.clock.Now())
	if rec.Status == Free && !rec.ExpiresAt.IsZero() {
		if _, perr := rec.ExpiresAt.Time(); perr != nil {
			r.log.Warn("malformed status expiry", "user_id", userID, "expires_at", string(rec.ExpiresAt))
		}
	}

	if eff.Stale {
		r.log.Info("free status expired, showing busy", "user_id", userID, "expired_at", string(rec.ExpiresAt))
		if r.repairStale {
			if err := r.adapter.WriteStatus(ctx, userID, BusyRecord(userID)); err != nil {
				r.log.Warn("failed to repair stale status", "user_id", userID, "error", err)
			}
		}
	}
	return eff
}

// Reconcile is the one-shot form of Reconciler.Reconcile with default options.
func Reconcile(ctx context.Context, adapter SyncAdapter, userID string, now time.Time, log *slog.Logger) Effective {
	return NewReconciler(adapter, log, WithReconcileClock(func() time.Time { return now })).Reconcile(ctx, userID)
}
