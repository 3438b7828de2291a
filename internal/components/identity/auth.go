package identity

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// UserAuth hashes and checks account passwords with bcrypt.
type UserAuth struct {
	cost int

	// dummy is compared against when the username is unknown, so a miss
	// costs the same as a wrong password.
	dummyOnce sync.Once
	dummy     []byte
}

// NewUserAuth uses cost, or bcrypt.DefaultCost when cost is below
// bcrypt.MinCost.
func NewUserAuth(cost int) *UserAuth {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &UserAuth{cost: cost}
}

// NewUserAuthFast uses the minimum bcrypt cost. Tests only.
func NewUserAuthFast() *UserAuth {
	return &UserAuth{cost: bcrypt.MinCost}
}

func (a *UserAuth) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword returns ErrInvalidPassword on any mismatch, including a
// malformed hash.
func (a *UserAuth) VerifyPassword(hash, password string) error {
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrInvalidPassword
	}
	return nil
}

// Authenticate returns the user for valid credentials. Unknown usernames
// return ErrUserNotFound after a throwaway comparison.
func (a *UserAuth) Authenticate(ctx context.Context, repo UserRepo, username, password string) (*User, error) {
	user, err := repo.GetByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		a.dummyOnce.Do(func() {
			a.dummy, _ = bcrypt.GenerateFromPassword([]byte("dispoahora"), a.cost)
		})
		bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if err := a.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}
	return user, nil
}
