package store

import (
	"context"
	"database/sql"
	"time"

	"remit/internal/models"
)

const transferColumns = `id, user_id, amount, currency, recipient_name, recipient_phone,
	destination_country, destination_currency, exchange_rate, fees, received_amount,
	delivery_method, bank_name, account_number, status, payment_id, created_at, updated_at`

func scanTransfer(row rowScanner) (*models.Transfer, error) {
	var (
		t                                   models.Transfer
		bankName, accountNumber, paymentID sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Currency, &t.RecipientName, &t.RecipientPhone,
		&t.DestinationCountry, &t.DestinationCurrency, &t.ExchangeRate, &t.Fees, &t.ReceivedAmount,
		&t.DeliveryMethod, &bankName, &accountNumber, &t.Status, &paymentID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	t.BankName = bankName.String
	t.AccountNumber = accountNumber.String
	t.PaymentID = paymentID.String
	return &t, nil
}

func (s *PostgresStore) CreateTransfer(ctx context.Context, t *models.Transfer) error {
	query := `
		INSERT INTO transfers (
			user_id, amount, currency, recipient_name, recipient_phone,
			destination_country, destination_currency, exchange_rate, fees, received_amount,
			delivery_method, bank_name, account_number, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`

	if t.Status == "" {
		t.Status = models.TransferStatusPending
	}
	err := s.db.QueryRowContext(ctx, query,
		t.UserID, t.Amount, t.Currency, t.RecipientName, t.RecipientPhone,
		t.DestinationCountry, t.DestinationCurrency, t.ExchangeRate, t.Fees, t.ReceivedAmount,
		t.DeliveryMethod, nullString(t.BankName), nullString(t.AccountNumber), t.Status,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return mapError(err)
}

func (s *PostgresStore) GetTransfer(ctx context.Context, id int64) (*models.Transfer, error) {
	return scanTransfer(s.db.QueryRowContext(ctx,
		"SELECT "+transferColumns+" FROM transfers WHERE id = $1", id))
}

func (s *PostgresStore) ListTransfersByUser(ctx context.Context, userID int64) ([]models.Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+transferColumns+" FROM transfers WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := []models.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

func (s *PostgresStore) ClaimTransfer(ctx context.Context, id int64, staleBefore time.Time, key string) (string, error) {
	query := `
		UPDATE transfers
		SET settling_at = NOW(), settle_key = COALESCE(settle_key, $3)
		WHERE id = $1
			AND status IN ('pending', 'failed')
			AND (settling_at IS NULL OR settling_at < $2)
		RETURNING settle_key`

	var stored string
	err := s.db.QueryRowContext(ctx, query, id, staleBefore, key).Scan(&stored)
	return claimedKey(stored, err)
}

func (s *PostgresStore) CompleteTransfer(ctx context.Context, id int64, paymentID string) error {
	query := `
		UPDATE transfers
		SET status = 'completed', payment_id = $2, settling_at = NULL, settle_key = NULL, updated_at = NOW()
		WHERE id = $1 AND status <> 'completed'`

	res, err := s.db.ExecContext(ctx, query, id, paymentID)
	return updatedOne(res, err, ErrClaimed)
}

func (s *PostgresStore) ReleaseTransfer(ctx context.Context, id int64, status string, keepKey bool) error {
	query := `
		UPDATE transfers
		SET status = $2, settling_at = NULL,
			settle_key = CASE WHEN $3 THEN settle_key END,
			updated_at = NOW()
		WHERE id = $1 AND status <> 'completed'`

	res, err := s.db.ExecContext(ctx, query, id, status, keepKey)
	return updatedOne(res, err, ErrClaimed)
}
