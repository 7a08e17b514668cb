package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusFailed    = "failed"
)

const (
	DeliveryMobile = "mobile"
	DeliveryBank   = "bank"
)

// Transfer is a single remittance. ExchangeRate, Fees and ReceivedAmount are
// captured when the transfer is created and never recomputed afterwards.
type Transfer struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"user_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	RecipientName       string          `json:"recipient_name"`
	RecipientPhone      string          `json:"recipient_phone"`
	DestinationCountry  string          `json:"destination_country"`
	DestinationCurrency string          `json:"destination_currency"`
	ExchangeRate        decimal.Decimal `json:"exchange_rate"`
	Fees                decimal.Decimal `json:"fees"`
	ReceivedAmount      decimal.Decimal `json:"received_amount"`
	DeliveryMethod      string          `json:"delivery_method"`
	BankName            string          `json:"bank_name,omitempty"`
	AccountNumber       string          `json:"account_number,omitempty"`
	Status              string          `json:"status"`
	PaymentID           string          `json:"payment_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type CreateTransferRequest struct {
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	RecipientName       string          `json:"recipient_name"`
	RecipientPhone      string          `json:"recipient_phone"`
	DestinationCountry  string          `json:"destination_country"`
	DestinationCurrency string          `json:"destination_currency"`
	DeliveryMethod      string          `json:"delivery_method"`
	BankName            string          `json:"bank_name"`
	AccountNumber       string          `json:"account_number"`
}

type PaymentRequest struct {
	PaymentToken string `json:"payment_token"`
}
