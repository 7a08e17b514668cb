// Package gateway talks to the card-processing provider.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotConfigured = errors.New("payment gateway credentials are not configured")

// ChargeRequest amounts are in minor units of Currency.
type ChargeRequest struct {
	AmountMinor    int64
	Currency       string
	SourceToken    string
	IdempotencyKey string
	BuyerEmail     string
	Note           string
	ReferenceID    string
}

type Payment struct {
	ID     string
	Status string
}

// Charger is the narrow surface settlement depends on.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (*Payment, error)
}

type Reason string

const (
	ReasonCardDeclined               Reason = "card_declined"
	ReasonInsufficientFunds          Reason = "insufficient_funds"
	ReasonCVVFailure                 Reason = "cvv_failure"
	ReasonAddressVerificationFailure Reason = "address_verification_failure"
	ReasonInvalidExpiration          Reason = "invalid_expiration"
	ReasonGenericDecline             Reason = "generic_decline"
	ReasonOther                      Reason = "other"
)

var reasonByCode = map[string]Reason{
	"CARD_DECLINED":                ReasonCardDeclined,
	"INSUFFICIENT_FUNDS":           ReasonInsufficientFunds,
	"CVV_FAILURE":                  ReasonCVVFailure,
	"ADDRESS_VERIFICATION_FAILURE": ReasonAddressVerificationFailure,
	"INVALID_EXPIRATION":           ReasonInvalidExpiration,
	"GENERIC_DECLINE":              ReasonGenericDecline,
}

var messageByReason = map[Reason]string{
	ReasonCardDeclined:               "Your card was declined. Please try another card.",
	ReasonInsufficientFunds:          "Insufficient funds on this card.",
	ReasonCVVFailure:                 "The security code (CVV) is incorrect.",
	ReasonAddressVerificationFailure: "The billing postal code could not be verified.",
	ReasonInvalidExpiration:          "The card expiration date is invalid.",
	ReasonGenericDecline:             "The payment was declined by your bank.",
}

const genericMessage = "Payment processing error. Please try again later."

// ReasonForCode maps a provider error code onto a Reason.
func ReasonForCode(code string) Reason {
	if r, ok := reasonByCode[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return r
	}
	return ReasonOther
}

// UserMessage is safe to show to the payer.
func (r Reason) UserMessage() string {
	if msg, ok := messageByReason[r]; ok {
		return msg
	}
	return genericMessage
}

// Error is a failed charge. Detail is provider text and must stay server-side.
type Error struct {
	Reason     Reason
	Code       string
	Category   string
	Detail     string
	StatusCode int
	Transient  bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("payment gateway: %s (%s, http %d): %s", e.Reason, e.Code, e.StatusCode, e.Detail)
}

// IsDecline reports whether err is a card-level refusal.
func IsDecline(err error) bool {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return false
	}
	return gwErr.Reason != ReasonOther
}

// CodeKeyReused is returned when an idempotency key is replayed with a
// different request body.
const CodeKeyReused = "IDEMPOTENCY_KEY_REUSED"

// IsKeyConflict reports whether the provider rejected a replayed idempotency
// key because the original request differed.
func IsKeyConflict(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Code == CodeKeyReused
}

// OutcomeUnknown reports whether the provider may have taken the payment even
// though Charge returned err. Retries must then reuse the same idempotency key.
func OutcomeUnknown(err error) bool {
	if err == nil || errors.Is(err, ErrNotConfigured) {
		return false
	}
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return true
	}
	if gwErr.Transient {
		return true
	}
	switch gwErr.Code {
	case "INVALID_RESPONSE", "READ_ERROR", CodeKeyReused:
		return true
	}
	return false
}
