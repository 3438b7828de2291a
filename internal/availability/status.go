// Package availability implements the Free/Busy status card: the optimistic
// state machine, the expiry countdown, and load-time reconciliation against
// the persisted profile row.
package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the availability a user broadcasts.
type Status string

const (
	Busy Status = "busy"
	Free Status = "free"
)

// Wire values stored in the profiles.status column.
const (
	WireFree = "Libre"
	WireBusy = "Ocupado"
)

// FreeTTL is how long a Free status stays valid after it is set.
const FreeTTL = time.Hour

var (
	ErrMalformedExpiry = errors.New("malformed expiry timestamp")
	ErrInvalidRecord   = errors.New("invalid availability record")
)

// ParseWireStatus maps a profiles.status value to a Status.
// Anything other than "Libre" is treated as Busy.
func ParseWireStatus(s string) Status {
	if strings.TrimSpace(s) == WireFree {
		return Free
	}
	return Busy
}

// Wire returns the profiles.status value for s.
func (s Status) Wire() string {
	if s == Free {
		return WireFree
	}
	return WireBusy
}

// Expiry is a persisted expiry instant in its ISO-8601 wire form.
// The zero value means "no expiry".
type Expiry string

// NewExpiry renders t as an RFC 3339 UTC instant.
func NewExpiry(t time.Time) Expiry {
	return Expiry(t.UTC().Format(time.RFC3339Nano))
}

// IsZero reports whether no expiry is set.
func (e Expiry) IsZero() bool {
	return strings.TrimSpace(string(e)) == ""
}

// Time parses the expiry. Values that are not ISO-8601 instants return
// ErrMalformedExpiry.
func (e Expiry) Time() (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(e)))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedExpiry, string(e))
	}
	return t, nil
}

// Ptr returns nil for a zero expiry, otherwise a pointer to its string form.
// Used when encoding the nullable status_expires_at column.
func (e Expiry) Ptr() *string {
	if e.IsZero() {
		return nil
	}
	s := string(e)
	return &s
}

// ExpiryFromPtr is the inverse of Expiry.Ptr.
func ExpiryFromPtr(s *string) Expiry {
	if s == nil {
		return ""
	}
	return Expiry(*s)
}

// Record is the per-user persisted availability. Writes always carry both
// fields together.
type Record struct {
	UserID    string
	Status    Status
	ExpiresAt Expiry
}

// BusyRecord returns the record written when a user goes Busy.
func BusyRecord(userID string) Record {
	return Record{UserID: userID, Status: Busy}
}

// FreeRecord returns the record written when a user goes Free at now.
func FreeRecord(userID string, now time.Time) Record {
	return Record{UserID: userID, Status: Free, ExpiresAt: NewExpiry(now.Add(FreeTTL))}
}

// Validate checks the write-side invariant: an expiry is present iff the
// status is Free, and it must lie after now.
func (r Record) Validate(now time.Time) error {
	switch r.Status {
	case Busy:
		if !r.ExpiresAt.IsZero() {
			return fmt.Errorf("%w: busy record carries an expiry", ErrInvalidRecord)
		}
	case Free:
		t, err := r.ExpiresAt.Time()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		if !t.After(now) {
			return fmt.Errorf("%w: expiry %s is not in the future", ErrInvalidRecord, r.ExpiresAt)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, r.Status)
	}
	return nil
}

// Clock returns the current time.
type Clock func() time.Time

// Now returns the current time, falling back to time.Now for a nil Clock.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
