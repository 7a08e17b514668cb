package store

import (
	"context"

	"remit/internal/models"
)

const rateColumns = `id, from_currency, to_currency, rate, created_at, updated_at`

func scanRate(row rowScanner) (*models.ExchangeRate, error) {
	var r models.ExchangeRate
	if err := row.Scan(&r.ID, &r.FromCurrency, &r.ToCurrency, &r.Rate, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

func (s *PostgresStore) CreateRate(ctx context.Context, r *models.ExchangeRate) error {
	query := `
		INSERT INTO exchange_rates (from_currency, to_currency, rate)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, r.FromCurrency, r.ToCurrency, r.Rate).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return mapError(err)
}

func (s *PostgresStore) UpdateRate(ctx context.Context, r *models.ExchangeRate) error {
	query := `
		UPDATE exchange_rates
		SET from_currency = $2, to_currency = $3, rate = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, r.ID, r.FromCurrency, r.ToCurrency, r.Rate).
		Scan(&r.CreatedAt, &r.UpdatedAt)
	return mapError(err)
}

func (s *PostgresStore) DeleteRate(ctx context.Context, id int64) (bool, error) {
	return deleted(s.db.ExecContext(ctx, "DELETE FROM exchange_rates WHERE id = $1", id))
}

func (s *PostgresStore) GetRate(ctx context.Context, id int64) (*models.ExchangeRate, error) {
	return scanRate(s.db.QueryRowContext(ctx,
		"SELECT "+rateColumns+" FROM exchange_rates WHERE id = $1", id))
}

// CurrentRate picks the most recently updated row, not the highest id.
func (s *PostgresStore) CurrentRate(ctx context.Context, from, to string) (*models.ExchangeRate, error) {
	query := `
		SELECT ` + rateColumns + `
		FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2
		ORDER BY updated_at DESC, id DESC
		LIMIT 1`

	return scanRate(s.db.QueryRowContext(ctx, query, from, to))
}

func (s *PostgresStore) ListRates(ctx context.Context) ([]models.ExchangeRate, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+rateColumns+" FROM exchange_rates ORDER BY from_currency, to_currency, updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := []models.ExchangeRate{}
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, *r)
	}
	return rates, rows.Err()
}
