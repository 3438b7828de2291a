// Package identity provides user accounts, authentication, and session handling.
package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidPassword = errors.New("invalid password")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionNotFound = errors.New("session not found")
)

// userNamespace scopes name-based user ids.
var userNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("users.dispoahora"))

// UserID returns the stable id for a username. The same username always maps
// to the same id, so profile rows survive restarts of the in-memory user repo.
func UserID(username string) string {
	return uuid.NewSHA1(userNamespace, []byte(strings.ToLower(strings.TrimSpace(username)))).String()
}

// User is an account that can log in and broadcast availability.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"` // bcrypt hash, never serialized
	CreatedAt    time.Time `json:"created_at"`
}

// UserRepo provides user storage operations.
type UserRepo interface {
	// Create creates a new user. Returns ErrUserExists if username is taken.
	Create(ctx context.Context, user *User) error

	// Get retrieves a user by ID. Returns ErrUserNotFound if not found.
	Get(ctx context.Context, id string) (*User, error)

	// GetByUsername retrieves a user by username. Returns ErrUserNotFound if not found.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// List returns all users ordered by username.
	List(ctx context.Context) ([]*User, error)
}

// MemoryUserRepo is an in-memory implementation of UserRepo.
type MemoryUserRepo struct {
	mu         sync.RWMutex
	users      map[string]*User // by ID
	byUsername map[string]string
}

// NewMemoryUserRepo creates a new in-memory user repository.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:      make(map[string]*User),
		byUsername: make(map[string]string),
	}
}

func (r *MemoryUserRepo) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[user.Username]; exists {
		return ErrUserExists
	}
	if user.ID == "" {
		user.ID = UserID(user.Username)
	}
	if _, exists := r.users[user.ID]; exists {
		return ErrUserExists
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	cp := *user
	r.users[cp.ID] = &cp
	r.byUsername[cp.Username] = cp.ID
	return nil
}

func (r *MemoryUserRepo) Get(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	r.mu.RLock()
	id, ok := r.byUsername[username]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.Get(ctx, id)
}

func (r *MemoryUserRepo) List(ctx context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

var _ UserRepo = (*MemoryUserRepo)(nil)
