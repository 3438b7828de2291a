package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// SeededUser defines a user to be created at startup.
type SeededUser struct {
	Username    string
	Password    string
	DisplayName string
	AvatarURL   string
	Latitude    *float64
	Longitude   *float64
}

// Provisioner is called for every seeded user after the account exists.
// It must be idempotent: it runs again on every start.
type Provisioner func(ctx context.Context, u *User, seed SeededUser) error

// Bootstrap creates seeded users idempotently.
type Bootstrap struct {
	repo      UserRepo
	auth      *UserAuth
	provision Provisioner
	log       *slog.Logger
}

// NewBootstrap creates a new bootstrap handler. provision may be nil.
func NewBootstrap(repo UserRepo, auth *UserAuth, provision Provisioner, log *slog.Logger) *Bootstrap {
	return &Bootstrap{
		repo:      repo,
		auth:      auth,
		provision: provision,
		log:       logutil.NoopIfNil(log),
	}
}

// Run creates any missing seeded users and provisions each of them.
// Returns the number of users created (0 if all already exist).
func (b *Bootstrap) Run(ctx context.Context, seeded []SeededUser) (int, error) {
	var created int
	for _, s := range seeded {
		u, n, err := b.ensureUser(ctx, s)
		if err != nil {
			return created, fmt.Errorf("seed user %q: %w", s.Username, err)
		}
		created += n

		if b.provision != nil {
			if err := b.provision(ctx, u, s); err != nil {
				return created, fmt.Errorf("provision user %q: %w", s.Username, err)
			}
		}
	}
	return created, nil
}

func (b *Bootstrap) ensureUser(ctx context.Context, s SeededUser) (*User, int, error) {
	existing, err := b.repo.GetByUsername(ctx, s.Username)
	if err == nil {
		b.log.Debug("user already exists", "username", s.Username)
		return existing, 0, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, 0, err
	}

	hash, err := b.auth.HashPassword(s.Password)
	if err != nil {
		return nil, 0, err
	}

	displayName := s.DisplayName
	if displayName == "" {
		displayName = s.Username
	}

	user := &User{
		ID:           UserID(s.Username),
		Username:     s.Username,
		DisplayName:  displayName,
		AvatarURL:    s.AvatarURL,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := b.repo.Create(ctx, user); err != nil {
		return nil, 0, err
	}

	b.log.Info("created user", "username", s.Username, "user_id", user.ID)
	return user, 1, nil
}
