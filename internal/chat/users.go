package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/catalog"
)

type LoginResult struct {
	Token    string
	Username string
	Role     string
	Schema   *string
}

func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if username == "" || password == "" {
		return LoginResult{}, newError(KindInvalidArgument, "username and password are required", nil)
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return LoginResult{}, newError(KindInvalidCredentials, MessageInvalidCreds, nil)
		}
		return LoginResult{}, newError(KindInternal, "Login failed", err)
	}
	if !auth.VerifyPassword(username, password, user.PasswordHash) {
		return LoginResult{}, newError(KindInvalidCredentials, MessageInvalidCreds, nil)
	}

	token, err := s.tokens.Issue(user.Username, user.Role)
	if err != nil {
		return LoginResult{}, newError(KindInternal, "Login failed", err)
	}
	return LoginResult{
		Token:    token,
		Username: user.Username,
		Role:     user.Role,
		Schema:   user.Schema,
	}, nil
}

type AddUserInput struct {
	Username    string
	Password    string
	Role        string
	Schema      string
	AdminSchema *string
}

func (s *Service) AddUser(ctx context.Context, in AddUserInput) (catalog.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return catalog.User{}, newError(KindInvalidArgument, "username and password are required", nil)
	}
	role := in.Role
	if role == "" {
		role = catalog.RoleUser
	}
	if !catalog.ValidRole(role) {
		return catalog.User{}, newError(KindInvalidArgument, "role must be one of: user, admin", nil)
	}
	if strings.TrimSpace(in.Schema) == "" {
		return catalog.User{}, newError(KindInvalidArgument, MessageSchemaRequired, nil)
	}

	schemaText := in.Schema
	user, err := s.users.CreateUser(ctx, catalog.CreateUserInput{
		Username:     username,
		PasswordHash: auth.HashPassword(username, in.Password),
		Role:         role,
		Schema:       &schemaText,
		AdminSchema:  in.AdminSchema,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrAlreadyExists) {
			return catalog.User{}, newError(KindAlreadyExists, "User already exists", err)
		}
		return catalog.User{}, newError(KindInternal, "Failed to create user", err)
	}
	return user, nil
}

func (s *Service) RemoveUser(ctx context.Context, username string) error {
	if strings.TrimSpace(username) == "" {
		return newError(KindInvalidArgument, "username is required", nil)
	}
	deleted, err := s.users.DeleteUserByUsername(ctx, username)
	if err != nil {
		return newError(KindInternal, "Failed to remove user", err)
	}
	if !deleted {
		return newError(KindNotFound, MessageUserNotFound, nil)
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]catalog.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, newError(KindInternal, "Failed to list users", err)
	}
	return users, nil
}

// UpdateUserInput fields left nil are unchanged.
type UpdateUserInput struct {
	Username    *string
	Password    *string
	Role        *string
	Schema      *string
	AdminSchema *string
}

// UpdateUser re-hashes a new password with the username the user will have
// after the update, since the username keys the hash.
func (s *Service) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (catalog.User, error) {
	existing, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.User{}, newError(KindNotFound, MessageUserNotFound, err)
		}
		return catalog.User{}, newError(KindInternal, "Failed to load user", err)
	}

	update := catalog.UpdateUserInput{
		Role:        in.Role,
		Schema:      in.Schema,
		AdminSchema: in.AdminSchema,
	}
	if in.Role != nil && !catalog.ValidRole(*in.Role) {
		return catalog.User{}, newError(KindInvalidArgument, "role must be one of: user, admin", nil)
	}
	effectiveUsername := existing.Username
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		if trimmed == "" {
			return catalog.User{}, newError(KindInvalidArgument, "username must not be empty", nil)
		}
		update.Username = &trimmed
		effectiveUsername = trimmed
	}
	switch {
	case in.Password != nil && *in.Password != "":
		hash := auth.HashPassword(effectiveUsername, *in.Password)
		update.PasswordHash = &hash
	case in.Username != nil && effectiveUsername != existing.Username:
		return catalog.User{}, newError(KindInvalidArgument, "password is required when changing username", nil)
	}

	user, err := s.users.UpdateUser(ctx, id, update)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			return catalog.User{}, newError(KindNotFound, MessageUserNotFound, err)
		case errors.Is(err, catalog.ErrAlreadyExists):
			return catalog.User{}, newError(KindAlreadyExists, "User already exists", err)
		default:
			return catalog.User{}, newError(KindInternal, "Failed to update user", err)
		}
	}
	return user, nil
}
