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

const maxQuantity = 1000

type OrderReceipt struct {
	ID        int64           `json:"id"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	PaymentID string          `json:"payment_id"`
	Timestamp time.Time       `json:"timestamp"`
}

// CreateOrder prices the requested items, stores the order with its items in
// one transaction and, when paymentToken is set, settles it straight away.
// If that charge fails the pending order is returned together with the error.
func (s *Service) CreateOrder(ctx context.Context, userID int64, items []models.OrderItemRequest, shipping models.ShippingInfo, currency, paymentToken string) (*models.Order, error) {
	if len(items) == 0 {
		return nil, validationError("An order needs at least one item.")
	}

	if strings.TrimSpace(currency) == "" {
		currency = s.cfg.OrderCurrency
	}
	currency, ok := utils.NormalizeCurrency(currency)
	if !ok {
		return nil, validationError("Currency must be a three-letter code.")
	}

	shipping.FirstName = strings.TrimSpace(shipping.FirstName)
	shipping.LastName = strings.TrimSpace(shipping.LastName)
	shipping.Phone = strings.TrimSpace(shipping.Phone)
	shipping.Note = strings.TrimSpace(shipping.Note)
	if shipping.FirstName == "" || shipping.LastName == "" || shipping.Phone == "" {
		return nil, validationError("Shipping first name, last name and phone are required.")
	}

	var token string
	if strings.TrimSpace(paymentToken) != "" {
		var err error
		if token, err = checkToken(paymentToken); err != nil {
			return nil, err
		}
	}

	lines, total, err := s.priceItems(ctx, items, currency)
	if err != nil {
		return nil, err
	}
	if _, err := s.toMinor(total, currency); err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:          userID,
		Total:           total,
		Currency:        currency,
		Status:          models.OrderStatusPending,
		ShippingAddress: shipping,
		Items:           make([]models.OrderItem, len(lines)),
	}
	for i, l := range lines {
		order.Items[i] = l.OrderItem
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			return nil, validationError("One of the products in this order no longer exists.")
		}
		return nil, systemError(err)
	}
	for i := range lines {
		lines[i].OrderItem = order.Items[i]
	}

	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("total", order.Total.String()),
		zap.Int("items", len(order.Items)))

	if token == "" {
		return order, nil
	}

	if _, err := s.settleOrder(ctx, order, user, lines, token); err != nil {
		return order, err
	}
	return order, nil
}

// priceItems resolves each product and computes the decimal total. A custom
// price replaces the catalog price for that line only.
func (s *Service) priceItems(ctx context.Context, items []models.OrderItemRequest, currency string) ([]models.OrderLine, decimal.Decimal, error) {
	lines := make([]models.OrderLine, 0, len(items))
	total := decimal.Zero

	for _, item := range items {
		if item.ProductID <= 0 {
			return nil, decimal.Zero, validationError("Invalid product id %d.", item.ProductID)
		}
		if item.Quantity <= 0 || item.Quantity > maxQuantity {
			return nil, decimal.Zero, validationError("Quantity for product %d must be between 1 and %d.", item.ProductID, maxQuantity)
		}

		p, err := s.store.GetProduct(ctx, item.ProductID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !p.Active) {
			return nil, decimal.Zero, validationError("Product %d not found.", item.ProductID)
		}
		if err != nil {
			return nil, decimal.Zero, systemError(err)
		}

		price := p.Price
		if item.Price != nil {
			if !item.Price.IsPositive() {
				return nil, decimal.Zero, newError(KindAmountValidation, fmt.Sprintf("Price for product %d must be greater than zero.", item.ProductID), nil)
			}
			if !item.Price.Equal(item.Price.Round(models.MinorExponent(currency))) {
				return nil, decimal.Zero, newError(KindAmountValidation, fmt.Sprintf("Price for product %d has more decimals than %s allows.", item.ProductID, currency), nil)
			}
			price = *item.Price
		} else if p.Currency != "" && p.Currency != currency {
			return nil, decimal.Zero, validationError("Product %d is priced in %s, not %s.", item.ProductID, p.Currency, currency)
		}

		line := models.OrderLine{
			OrderItem:   models.OrderItem{ProductID: p.ID, Quantity: item.Quantity, Price: price},
			ProductName: p.Name,
		}
		total = total.Add(line.LineTotal())
		lines = append(lines, line)
	}

	return lines, total, nil
}

// SettleOrder pays for an existing pending order.
func (s *Service) SettleOrder(ctx context.Context, orderID string, paymentToken string, callerUserID int64) (*OrderReceipt, error) {
	id, err := utils.ParseID(orderID)
	if err != nil {
		return nil, validationError("Invalid order id.")
	}
	token, err := checkToken(paymentToken)
	if err != nil {
		return nil, err
	}

	order, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "Order not found.", err)
	}
	if err != nil {
		return nil, systemError(err)
	}
	if order.UserID != callerUserID {
		return nil, newError(KindAuthorization, "You are not allowed to pay for this order.", nil)
	}
	if order.Status != models.OrderStatusPending {
		return nil, newError(KindAlreadyProcessed, "This order has already been paid.", nil)
	}

	user, err := s.loadUser(ctx, callerUserID)
	if err != nil {
		return nil, err
	}

	return s.settleOrder(ctx, order, user, s.orderLines(ctx, order), token)
}

// orderLines joins stored items with product names for the receipt. A product
// deleted since the order was placed just has no name.
func (s *Service) orderLines(ctx context.Context, order *models.Order) []models.OrderLine {
	lines := make([]models.OrderLine, len(order.Items))
	for i, item := range order.Items {
		lines[i].OrderItem = item
		if p, err := s.store.GetProduct(ctx, item.ProductID); err == nil {
			lines[i].ProductName = p.Name
		}
	}
	return lines
}

func (s *Service) settleOrder(ctx context.Context, order *models.Order, user *models.User, lines []models.OrderLine, token string) (*OrderReceipt, error) {
	amountMinor, err := s.toMinor(order.Total, order.Currency)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.Int64("order_id", order.ID), zap.Int64("user_id", user.ID))

	proposed := s.idempotencyKey("or", order.ID, user.ID)
	key, err := s.store.ClaimOrder(ctx, order.ID, s.staleBefore(), proposed)
	if err != nil {
		if errors.Is(err, store.ErrClaimed) {
			return nil, newError(KindAlreadyProcessed, "This order has already been paid or is being processed.", err)
		}
		return nil, systemError(err)
	}
	if key != proposed {
		log.Warn("reusing idempotency key from an unfinished attempt", zap.String("idempotency_key", key))
	}

	bg := context.WithoutCancel(ctx)

	payment, err := s.charger.Charge(bg, gateway.ChargeRequest{
		AmountMinor:    amountMinor,
		Currency:       order.Currency,
		SourceToken:    token,
		IdempotencyKey: key,
		BuyerEmail:     user.Email,
		Note:           fmt.Sprintf("Order #%d", order.ID),
		ReferenceID:    fmt.Sprintf("order-%d", order.ID),
	})
	if err != nil {
		// The order stays pending for manual reconciliation or another attempt.
		if relErr := s.store.ReleaseOrder(bg, order.ID, gateway.OutcomeUnknown(err)); relErr != nil {
			log.Error("failed to release order claim", zap.Error(relErr))
		}
		log.Warn("order payment failed", zap.Error(err))
		if gateway.IsKeyConflict(err) {
			return nil, newError(KindAlreadyProcessed, "A previous payment attempt for this order is still being verified.", err)
		}
		return nil, paymentError(err)
	}

	if err := s.store.CompleteOrder(bg, order.ID, payment.ID, models.OrderStatusProcessing); err != nil {
		log.Error("payment succeeded but order was not updated",
			zap.String("payment_id", payment.ID), zap.Error(err))
		return nil, systemError(err)
	}
	order.Status = models.OrderStatusProcessing
	order.PaymentID = payment.ID

	log.Info("order settled", zap.String("payment_id", payment.ID))

	paid := *order
	s.dispatch("order", []zap.Field{zap.Int64("order_id", order.ID)}, func(ctx context.Context) bool {
		return s.notifier.SendOrderReceipt(ctx, &paid, user, lines, payment.ID)
	})

	return &OrderReceipt{
		ID:        order.ID,
		Status:    order.Status,
		Total:     order.Total,
		Currency:  order.Currency,
		PaymentID: payment.ID,
		Timestamp: s.now().UTC(),
	}, nil
}
