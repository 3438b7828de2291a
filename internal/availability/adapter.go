package availability

import (
	"context"
	"errors"
)

// ErrNoRecord is returned by readers when the user has no profile row yet.
var ErrNoRecord = errors.New("availability record not found")

// Reader loads the persisted availability for a user.
type Reader interface {
	ReadStatus(ctx context.Context, userID string) (Record, error)
}

// Writer persists status and expiry together, replacing whatever was stored.
type Writer interface {
	WriteStatus(ctx context.Context, userID string, rec Record) error
}

// SyncAdapter is the remote side of the status card. Transport, caching and
// retries belong to implementations.
type SyncAdapter interface {
	Reader
	Writer
}
