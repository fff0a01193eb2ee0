package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/catalog"
)

type AdminSeed struct {
	Username string
	Password string
	Schema   string
}

type userStore interface {
	GetUserByUsername(ctx context.Context, username string) (catalog.User, error)
	CreateUser(ctx context.Context, in catalog.CreateUserInput) (catalog.User, error)
}

// EnsureAdmin creates the seed admin unless a user with that name exists.
// It reports whether a user was created.
func EnsureAdmin(ctx context.Context, users userStore, seed AdminSeed) (bool, error) {
	username := strings.TrimSpace(seed.Username)
	if username == "" {
		return false, errors.New("bootstrap admin username is required")
	}
	if seed.Password == "" {
		return false, errors.New("bootstrap admin password is required")
	}

	_, err := users.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, catalog.ErrNotFound):
		return false, fmt.Errorf("lookup bootstrap admin: %w", err)
	}

	in := catalog.CreateUserInput{
		Username:     username,
		PasswordHash: auth.HashPassword(username, seed.Password),
		Role:         catalog.RoleAdmin,
	}
	if schema := strings.TrimSpace(seed.Schema); schema != "" {
		in.Schema = &seed.Schema
		in.AdminSchema = &seed.Schema
	}
	if _, err := users.CreateUser(ctx, in); err != nil {
		if errors.Is(err, catalog.ErrAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	return true, nil
}
