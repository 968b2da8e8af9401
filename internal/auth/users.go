// Package auth holds the user directory, password checks and session tokens
// used to admit connections.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/pairchat/internal/relay"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
)

var validate = validator.New()

// User is a registered party. PasswordHash never leaves this package.
type User struct {
	ID           relay.Identity `json:"id"`
	Username     string         `json:"username"`
	Name         string         `json:"name"`
	PasswordHash []byte         `json:"-"`
}

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

// Validate checks the request shape before any password work is done.
func (r LoginRequest) Validate() error {
	return validate.Struct(r)
}

// Users is an in-memory user directory.
type Users struct {
	mu         sync.RWMutex
	byID       map[relay.Identity]User
	byUsername map[string]relay.Identity
	cost       int
}

// NewUsers returns an empty directory hashing passwords with cost. A cost
// outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewUsers(cost int) *Users {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Users{
		byID:       make(map[relay.Identity]User),
		byUsername: make(map[string]relay.Identity),
		cost:       cost,
	}
}

// Add hashes password and registers the user.
func (u *Users) Add(id relay.Identity, username, name, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return fmt.Errorf("hash password for %s: %w", username, err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.byUsername[username]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	if _, ok := u.byID[id]; ok {
		return fmt.Errorf("%w: id %d", ErrUserExists, id)
	}
	u.byID[id] = User{ID: id, Username: username, Name: name, PasswordHash: hash}
	u.byUsername[username] = id
	return nil
}

// SeedDemoUsers registers user1..userN with password1..passwordN.
func (u *Users) SeedDemoUsers(n int) error {
	for i := 1; i <= n; i++ {
		err := u.Add(relay.Identity(i),
			fmt.Sprintf("user%d", i),
			fmt.Sprintf("Demo User %d", i),
			fmt.Sprintf("password%d", i))
		if err != nil {
			return err
		}
	}
	return nil
}

// Authenticate checks a username/password pair. Unknown users and wrong
// passwords produce the same error.
func (u *Users) Authenticate(username, password string) (User, error) {
	u.mu.RLock()
	id, ok := u.byUsername[username]
	user := u.byID[id]
	u.mu.RUnlock()

	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns the user with the given id.
func (u *Users) Get(_ context.Context, id relay.Identity) (User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.byID[id]
	if !ok {
		return User{}, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	return user, nil
}

// All returns every user ordered by id.
func (u *Users) All(_ context.Context) []User {
	u.mu.RLock()
	users := make([]User, 0, len(u.byID))
	for _, user := range u.byID {
		users = append(users, user)
	}
	u.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
