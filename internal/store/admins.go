package store

import (
	"context"
	"strings"

	"remit/internal/models"
)

const adminColumns = `id, username, email, password_hash, role, active, created_at`

func scanAdmin(row rowScanner) (*models.Admin, error) {
	var a models.Admin
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.Active, &a.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

func (s *PostgresStore) CreateAdmin(ctx context.Context, a *models.Admin) error {
	query := `
		INSERT INTO admins (username, email, password_hash, role, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	a.Email = strings.ToLower(a.Email)
	err := s.db.QueryRowContext(ctx, query, a.Username, a.Email, a.PasswordHash, a.Role, a.Active).
		Scan(&a.ID, &a.CreatedAt)
	return mapError(err)
}

func (s *PostgresStore) GetAdminByID(ctx context.Context, id int64) (*models.Admin, error) {
	return scanAdmin(s.db.QueryRowContext(ctx,
		"SELECT "+adminColumns+" FROM admins WHERE id = $1", id))
}

func (s *PostgresStore) GetAdminByUsername(ctx context.Context, username string) (*models.Admin, error) {
	return scanAdmin(s.db.QueryRowContext(ctx,
		"SELECT "+adminColumns+" FROM admins WHERE username = $1", username))
}
