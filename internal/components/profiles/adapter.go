package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"
)

// Adapter serves the availability core straight from the local store.
type Adapter struct {
	repo *Repo
}

// NewAdapter wraps repo as an availability.SyncAdapter.
func NewAdapter(repo *Repo) *Adapter {
	return &Adapter{repo: repo}
}

// ReadStatus loads status and expiry for userID.
func (a *Adapter) ReadStatus(ctx context.Context, userID string) (availability.Record, error) {
	p, err := a.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return availability.Record{}, fmt.Errorf("%w: %s", availability.ErrNoRecord, userID)
		}
		return availability.Record{}, err
	}
	return availability.Record{
		UserID:    userID,
		Status:    availability.ParseWireStatus(p.Status),
		ExpiresAt: availability.ExpiryFromPtr(p.StatusExpiresAt),
	}, nil
}

// WriteStatus stores rec in a single update.
func (a *Adapter) WriteStatus(ctx context.Context, userID string, rec availability.Record) error {
	err := a.repo.UpdateStatus(ctx, userID, rec.Status.Wire(), rec.ExpiresAt.Ptr())
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", availability.ErrNoRecord, userID)
	}
	return err
}

var _ availability.SyncAdapter = (*Adapter)(nil)
