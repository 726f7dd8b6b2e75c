// Package auth handles password hashing, session tokens and account
// provisioning.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"budgetly/internal/core"
	"budgetly/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmptyEmail    = errors.New("email cannot be empty")
	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrAccountExists = errors.New("account already exists")
)

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateSessionToken returns 32 random bytes, hex encoded.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Account is the input for Provision.
type Account struct {
	Email       string
	DisplayName string
	Password    string
}

// Provision creates credentials for a new account together with its user
// record at the default budget.
func Provision(ctx context.Context, repo storage.Repository, a Account) (core.User, error) {
	email := strings.TrimSpace(a.Email)
	if email == "" {
		return core.User{}, ErrEmptyEmail
	}
	if strings.TrimSpace(a.Password) == "" {
		return core.User{}, ErrEmptyPassword
	}
	name := strings.TrimSpace(a.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	hash, err := HashPassword(a.Password)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := core.User{
		ID:          uuid.NewString(),
		DisplayName: name,
		Email:       email,
		Budget:      core.DefaultBudget,
	}
	err = repo.CreateCredentials(ctx, storage.Credentials{
		UserID:       u.ID,
		Email:        email,
		DisplayName:  name,
		PasswordHash: hash,
	})
	if errors.Is(err, storage.ErrConflict) {
		return core.User{}, fmt.Errorf("%w: %s", ErrAccountExists, email)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create credentials: %w", err)
	}
	if err := repo.CreateUser(ctx, u); err != nil && !errors.Is(err, storage.ErrConflict) {
		return core.User{}, fmt.Errorf("create user record: %w", err)
	}
	return u, nil
}
