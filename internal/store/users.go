package store

import (
	"context"
	"strings"

	"remit/internal/models"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, phone, role, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.FirstName, &u.LastName, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, first_name, last_name, phone, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		u.Username, strings.ToLower(u.Email), u.PasswordHash,
		u.FirstName, u.LastName, u.Phone, u.Role,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	u.Email = strings.ToLower(u.Email)
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", strings.ToLower(email)))
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, phone = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := s.db.QueryRowContext(ctx, query, u.ID, u.FirstName, u.LastName, u.Phone).Scan(&u.UpdatedAt)
	return mapError(err)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1", id, passwordHash)
	return updatedOne(res, err, ErrNotFound)
}
