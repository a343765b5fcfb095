// Package storage defines the account model shared by the SQL account stores.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// MaxUsernameLength matches the accounts.username column width.
const MaxUsernameLength = 64

// MaxPasswordBytes is the bcrypt input limit.
const MaxPasswordBytes = 72

var (
	// ErrAccountNotFound is returned when an account lookup yields no results.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when attempting to create a duplicate username.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is returned when authentication fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput is returned for usernames or passwords that can never be stored.
	ErrInvalidInput = errors.New("invalid account input")
)

// Account is a stored login.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// AccountStore creates and authenticates accounts.
type AccountStore interface {
	// Create stores a new account, or returns ErrAccountExists.
	Create(ctx context.Context, username, password string) (Account, error)
	// Authenticate returns the account when the password matches, otherwise
	// ErrAccountNotFound or ErrInvalidCredentials.
	Authenticate(ctx context.Context, username, password string) (Account, error)
	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// ValidateCredentials checks the shape of a username/password pair.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidInput.
func ValidateCredentials(username, password string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	case utf8.RuneCountInString(username) > MaxUsernameLength:
		return fmt.Errorf("%w: username exceeds %d characters", ErrInvalidInput, MaxUsernameLength)
	case password == "":
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	case len(password) > MaxPasswordBytes:
		return fmt.Errorf("%w: password exceeds %d bytes", ErrInvalidInput, MaxPasswordBytes)
	}
	return nil
}

// HashPassword creates a bcrypt hash of the given password.
//
// Precondition: password must be non-empty.
// Postcondition: Returns a bcrypt hash string.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
