package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"remit/internal/gateway"
	"remit/internal/models"
	"remit/internal/store"
	"remit/internal/utils"
)

var hundred = decimal.NewFromInt(100)

// TransferReceipt is the redacted result of a successful settlement.
type TransferReceipt struct {
	ID            int64           `json:"id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	RecipientName string          `json:"recipient_name"`
	PaymentID     string          `json:"payment_id"`
	Timestamp     time.Time       `json:"timestamp"`
}

// CreateTransfer stores a pending transfer with the current exchange rate,
// fees and received amount captured at this moment.
func (s *Service) CreateTransfer(ctx context.Context, userID int64, req models.CreateTransferRequest) (*models.Transfer, error) {
	currency, ok := utils.NormalizeCurrency(req.Currency)
	if !ok {
		return nil, validationError("Currency must be a three-letter code.")
	}
	destCurrency, ok := utils.NormalizeCurrency(req.DestinationCurrency)
	if !ok {
		return nil, validationError("Destination currency must be a three-letter code.")
	}
	if !req.Amount.IsPositive() {
		return nil, newError(KindAmountValidation, "Amount must be greater than zero.", nil)
	}
	if !req.Amount.Equal(req.Amount.Round(models.MinorExponent(currency))) {
		return nil, newError(KindAmountValidation, fmt.Sprintf("Amount has too many decimal places for %s.", currency), nil)
	}
	if _, err := s.toMinor(req.Amount, currency); err != nil {
		return nil, err
	}

	recipient := strings.TrimSpace(req.RecipientName)
	phone := strings.TrimSpace(req.RecipientPhone)
	country := strings.TrimSpace(req.DestinationCountry)
	switch {
	case recipient == "":
		return nil, validationError("Recipient name is required.")
	case phone == "":
		return nil, validationError("Recipient phone is required.")
	case country == "":
		return nil, validationError("Destination country is required.")
	}

	method := strings.ToLower(strings.TrimSpace(req.DeliveryMethod))
	if method == "" {
		method = models.DeliveryMobile
	}
	bankName := strings.TrimSpace(req.BankName)
	account := strings.TrimSpace(req.AccountNumber)
	switch method {
	case models.DeliveryMobile:
		bankName, account = "", ""
	case models.DeliveryBank:
		if bankName == "" || account == "" {
			return nil, validationError("Bank name and account number are required for bank delivery.")
		}
	default:
		return nil, validationError("Delivery method must be %q or %q.", models.DeliveryMobile, models.DeliveryBank)
	}

	rate := decimal.NewFromInt(1)
	if currency != destCurrency {
		current, err := s.store.CurrentRate(ctx, currency, destCurrency)
		if errors.Is(err, store.ErrNotFound) {
			return nil, validationError("No exchange rate is configured for %s to %s.", currency, destCurrency)
		}
		if err != nil {
			return nil, systemError(err)
		}
		rate = current.Rate
	}

	t := &models.Transfer{
		UserID:              userID,
		Amount:              req.Amount,
		Currency:            currency,
		RecipientName:       recipient,
		RecipientPhone:      phone,
		DestinationCountry:  country,
		DestinationCurrency: destCurrency,
		ExchangeRate:        rate,
		Fees:                req.Amount.Mul(s.cfg.TransferFeePercent).Div(hundred).Round(models.MinorExponent(currency)),
		ReceivedAmount:      req.Amount.Mul(rate).Round(models.MinorExponent(destCurrency)),
		DeliveryMethod:      method,
		BankName:            bankName,
		AccountNumber:       account,
		Status:              models.TransferStatusPending,
	}

	if err := s.store.CreateTransfer(ctx, t); err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			return nil, newError(KindAuthorization, "You are not allowed to perform this action.", err)
		}
		return nil, systemError(err)
	}

	s.logger.Info("transfer created",
		zap.Int64("transfer_id", t.ID),
		zap.Int64("user_id", userID),
		zap.String("amount", t.Amount.String()),
		zap.String("currency", t.Currency),
		zap.String("rate", t.ExchangeRate.String()))
	return t, nil
}

// SettleTransfer charges the payer for a pending transfer. Only one caller can
// hold the settlement claim for a transfer at a time, so the gateway is never
// charged twice for the same transfer.
func (s *Service) SettleTransfer(ctx context.Context, transferID string, paymentToken string, callerUserID int64) (*TransferReceipt, error) {
	id, err := utils.ParseID(transferID)
	if err != nil {
		return nil, validationError("Invalid transfer id.")
	}
	token, err := checkToken(paymentToken)
	if err != nil {
		return nil, err
	}

	t, err := s.store.GetTransfer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "Transfer not found.", err)
	}
	if err != nil {
		return nil, systemError(err)
	}
	if t.UserID != callerUserID {
		return nil, newError(KindAuthorization, "You are not allowed to pay for this transfer.", nil)
	}
	if t.Status == models.TransferStatusCompleted {
		return nil, newError(KindAlreadyProcessed, "This transfer has already been paid.", nil)
	}

	amountMinor, err := s.toMinor(t.Amount, t.Currency)
	if err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, callerUserID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.Int64("transfer_id", t.ID), zap.Int64("user_id", callerUserID))

	proposed := s.idempotencyKey("tr", t.ID, callerUserID)
	key, err := s.store.ClaimTransfer(ctx, t.ID, s.staleBefore(), proposed)
	if err != nil {
		if errors.Is(err, store.ErrClaimed) {
			return nil, newError(KindAlreadyProcessed, "This transfer has already been paid or is being processed.", err)
		}
		return nil, systemError(err)
	}
	if key != proposed {
		log.Warn("reusing idempotency key from an unfinished attempt", zap.String("idempotency_key", key))
	}

	// The charge and its bookkeeping must finish even if the client goes away.
	bg := context.WithoutCancel(ctx)

	payment, err := s.charger.Charge(bg, gateway.ChargeRequest{
		AmountMinor:    amountMinor,
		Currency:       t.Currency,
		SourceToken:    token,
		IdempotencyKey: key,
		BuyerEmail:     user.Email,
		Note:           fmt.Sprintf("Transfer to %s", t.RecipientName),
		ReferenceID:    fmt.Sprintf("transfer-%d", t.ID),
	})
	if err != nil {
		next := t.Status
		if gateway.IsDecline(err) {
			next = models.TransferStatusFailed
		}
		if relErr := s.store.ReleaseTransfer(bg, t.ID, next, gateway.OutcomeUnknown(err)); relErr != nil {
			log.Error("failed to release transfer claim", zap.Error(relErr))
		}
		log.Warn("transfer payment failed", zap.Error(err))
		if gateway.IsKeyConflict(err) {
			return nil, newError(KindAlreadyProcessed, "A previous payment attempt for this transfer is still being verified.", err)
		}
		return nil, paymentError(err)
	}

	if err := s.store.CompleteTransfer(bg, t.ID, payment.ID); err != nil {
		// The card was charged. The claim keeps its idempotency key, so a retry
		// replays this payment instead of creating a new one.
		log.Error("payment succeeded but transfer was not updated",
			zap.String("payment_id", payment.ID), zap.Error(err))
		return nil, systemError(err)
	}
	t.Status = models.TransferStatusCompleted
	t.PaymentID = payment.ID

	log.Info("transfer settled", zap.String("payment_id", payment.ID))

	paid := *t
	s.dispatch("transfer", []zap.Field{zap.Int64("transfer_id", t.ID)}, func(ctx context.Context) bool {
		return s.notifier.SendTransferReceipt(ctx, &paid, user, payment.ID, "card")
	})

	return &TransferReceipt{
		ID:            t.ID,
		Status:        t.Status,
		Amount:        t.Amount,
		Currency:      t.Currency,
		RecipientName: t.RecipientName,
		PaymentID:     payment.ID,
		Timestamp:     s.now().UTC(),
	}, nil
}
