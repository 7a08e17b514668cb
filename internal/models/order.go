package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusFailed     = "failed"
)

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	ShippingAddress ShippingInfo    `json:"shipping_address"`
	PaymentID       string          `json:"payment_id,omitempty"`
	Items           []OrderItem     `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem rows are written once, together with their order.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// LineTotal is Price * Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderLine is an order item joined with the product it refers to.
type OrderLine struct {
	OrderItem
	ProductName Localized `json:"product_name"`
}

// ShippingInfo is stored as a JSON document on the order row.
type ShippingInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Note      string `json:"note,omitempty"`
}

// Value encodes as a string; lib/pq would send []byte as bytea.
func (s ShippingInfo) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *ShippingInfo) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = ShippingInfo{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return errors.New("unsupported shipping_address type")
}

type OrderItemRequest struct {
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

type CreateOrderRequest struct {
	Items        []OrderItemRequest `json:"items"`
	Shipping     ShippingInfo       `json:"shipping_address"`
	Currency     string             `json:"currency"`
	PaymentToken string             `json:"payment_token,omitempty"`
}
