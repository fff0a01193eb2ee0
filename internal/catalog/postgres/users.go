package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/catalog"
)

const userColumns = `id, username, password_hash, role, schema, admin_schema, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (catalog.User, error) {
	var user catalog.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.Schema,
		&user.AdminSchema,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (r *Repository) CreateUser(ctx context.Context, in catalog.CreateUserInput) (catalog.User, error) {
	role := in.Role
	if role == "" {
		role = catalog.RoleUser
	}

	query := `
INSERT INTO users (username, password_hash, role, schema, admin_schema)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`

	user := catalog.User{
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		Role:         role,
		Schema:       in.Schema,
		AdminSchema:  in.AdminSchema,
	}
	if err := r.db.QueryRowContext(ctx, query, in.Username, in.PasswordHash, role, in.Schema, in.AdminSchema).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return catalog.User{}, catalog.ErrAlreadyExists
		}
		return catalog.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (catalog.User, error) {
	query := `
SELECT ` + userColumns + `
FROM users
WHERE username = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.User{}, catalog.ErrNotFound
		}
		return catalog.User{}, fmt.Errorf("get user by username: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (catalog.User, error) {
	query := `
SELECT ` + userColumns + `
FROM users
WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.User{}, catalog.ErrNotFound
		}
		return catalog.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]catalog.User, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+userColumns+`
FROM users
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := make([]catalog.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}

func (r *Repository) UpdateUser(ctx context.Context, id int64, in catalog.UpdateUserInput) (catalog.User, error) {
	if in.Empty() {
		return r.GetUserByID(ctx, id)
	}

	sets := make([]string, 0, 6)
	args := make([]any, 0, 6)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if in.Username != nil {
		set("username", *in.Username)
	}
	if in.PasswordHash != nil {
		set("password_hash", *in.PasswordHash)
	}
	if in.Role != nil {
		set("role", *in.Role)
	}
	if in.Schema != nil {
		set("schema", *in.Schema)
	}
	if in.AdminSchema != nil {
		set("admin_schema", *in.AdminSchema)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`
UPDATE users
SET %s
WHERE id = $%d
RETURNING `+userColumns, strings.Join(sets, ", "), len(args))

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.User{}, catalog.ErrNotFound
		}
		if isUniqueViolation(err) {
			return catalog.User{}, catalog.ErrAlreadyExists
		}
		return catalog.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (r *Repository) DeleteUserByUsername(ctx context.Context, username string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM users
WHERE username = $1`, username)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read deleted user count: %w", err)
	}
	return affected > 0, nil
}
