// Package settlement charges transfers and orders through the payment gateway
// and records the outcome.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"remit/internal/gateway"
	"remit/internal/models"
	"remit/internal/store"
)

const (
	maxIdempotencyKeyLen = 45
	maxTokenLen          = 512
	receiptTimeout       = 30 * time.Second
)

// Store is the slice of the persistence layer settlement needs.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CurrentRate(ctx context.Context, from, to string) (*models.ExchangeRate, error)
	store.TransferStore
	store.OrderStore
}

// Notifier sends receipts. A false return means delivery failed; it never
// affects a settlement that already succeeded.
type Notifier interface {
	SendTransferReceipt(ctx context.Context, t *models.Transfer, u *models.User, paymentID, method string) bool
	SendOrderReceipt(ctx context.Context, o *models.Order, u *models.User, lines []models.OrderLine, paymentID string) bool
}

type Config struct {
	// MaxAmountMinor is a sanity ceiling on a single charge.
	MaxAmountMinor     int64
	ClaimTTL           time.Duration
	TransferFeePercent decimal.Decimal
	OrderCurrency      string
}

type Service struct {
	store    Store
	charger  gateway.Charger
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewService wires the flows. notifier may be nil, in which case no receipts
// are sent.
func NewService(s Store, charger gateway.Charger, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 10 * time.Minute
	}
	if cfg.MaxAmountMinor <= 0 {
		cfg.MaxAmountMinor = 100000000
	}
	if cfg.OrderCurrency == "" {
		cfg.OrderCurrency = "CAD"
	}
	return &Service{
		store:    s,
		charger:  charger,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Wait blocks until every receipt started so far has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// toMinor converts amount to integer minor units of currency, rejecting
// non-positive results and anything above the configured ceiling.
func (s *Service) toMinor(amount decimal.Decimal, currency string) (int64, error) {
	scaled := amount.Shift(models.MinorExponent(currency)).Round(0)
	if !scaled.IsPositive() {
		return 0, newError(KindAmountValidation, "Amount must be greater than zero.", nil)
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || scaled.IntPart() > s.cfg.MaxAmountMinor {
		return 0, newError(KindAmountValidation, "Amount exceeds the maximum allowed for a single payment.", nil)
	}
	return scaled.IntPart(), nil
}

// idempotencyKey is unique per entity, payer, instant and random suffix, and
// stays within the gateway's 45 character limit.
func (s *Service) idempotencyKey(prefix string, id, userID int64) string {
	ms := strconv.FormatInt(s.now().UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	key := fmt.Sprintf("%s-%d-%d-%s-%s", prefix, id, userID, ms, suffix)
	if len(key) > maxIdempotencyKeyLen {
		key = fmt.Sprintf("%s-%d-%s-%s", prefix, id, ms, suffix)
	}
	return key
}

func checkToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", validationError("Payment token is required.")
	}
	if len(token) > maxTokenLen || strings.ContainsAny(token, " \t\r\n") {
		return "", validationError("Payment token is invalid.")
	}
	return token, nil
}

func (s *Service) staleBefore() time.Time {
	return s.now().Add(-s.cfg.ClaimTTL)
}

// dispatch runs fn on a tracked goroutine detached from the request.
func (s *Service) dispatch(receipt string, fields []zap.Field, fn func(ctx context.Context) bool) {
	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("receipt dispatch panicked", append(fields, zap.String("receipt", receipt), zap.Any("panic", r))...)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), receiptTimeout)
		defer cancel()

		if !fn(ctx) {
			s.logger.Warn("receipt not delivered", append(fields, zap.String("receipt", receipt))...)
		}
	}()
}

// loadUser maps lookup failures for the paying user.
func (s *Service) loadUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindAuthorization, "You are not allowed to perform this action.", err)
	}
	if err != nil {
		return nil, systemError(err)
	}
	return u, nil
}
