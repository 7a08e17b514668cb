// Package notify sends payment receipts to payers and the operations inbox.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"remit/internal/models"
)

// RateNotConfigured replaces the exchange rate line when no rate is known.
const RateNotConfigured = "Taux de change / Exchange rate: not configured"

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// RateLookup resolves the current rate for a currency pair.
type RateLookup interface {
	CurrentRate(ctx context.Context, from, to string) (*models.ExchangeRate, error)
}

type Config struct {
	// OpsAddress receives a copy of every receipt. Empty disables the copy.
	OpsAddress string
	// RateCurrency is the destination currency quoted on order receipts.
	RateCurrency string
}

type Dispatcher struct {
	mailer Mailer
	rates  RateLookup
	cfg    Config
	logger *zap.Logger
}

func NewDispatcher(mailer Mailer, rates RateLookup, cfg Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{mailer: mailer, rates: rates, cfg: cfg, logger: logger}
}

// TransferReference formats the public reference of a transfer.
func TransferReference(id int64) string {
	return fmt.Sprintf("REF-%07d", id)
}

// OrderReference formats the public reference of an order.
func OrderReference(id int64) string {
	return fmt.Sprintf("CMD-%06d", id)
}

type transferView struct {
	Name           string
	Reference      string
	Amount         string
	Fees           string
	Recipient      string
	RecipientPhone string
	Country        string
	Received       string
	RateLine       string
	Delivery       string
	Method         string
	PaymentID      string
}

type orderLineView struct {
	Name     string
	Quantity int
	Total    string
}

type orderView struct {
	Name      string
	Reference string
	Lines     []orderLineView
	Total     string
	RateLine  string
	ShipTo    string
	ShipPhone string
	ShipNote  string
	PaymentID string
}

// SendTransferReceipt mails the payer and the operations inbox. It reports
// false when any delivery failed.
func (d *Dispatcher) SendTransferReceipt(ctx context.Context, t *models.Transfer, u *models.User, paymentID, method string) bool {
	rate := t.ExchangeRate
	if !rate.IsPositive() {
		rate = d.currentRate(ctx, t.Currency, t.DestinationCurrency)
	}

	view := transferView{
		Name:           u.FullName(),
		Reference:      TransferReference(t.ID),
		Amount:         models.FormatMoney(t.Amount, t.Currency),
		Fees:           models.FormatMoney(t.Fees, t.Currency),
		Recipient:      t.RecipientName,
		RecipientPhone: t.RecipientPhone,
		Country:        t.DestinationCountry,
		Received:       models.FormatMoney(t.ReceivedAmount, t.DestinationCurrency),
		RateLine:       rateLine(t.Currency, t.DestinationCurrency, rate),
		Delivery:       deliveryLabel(t),
		Method:         method,
		PaymentID:      paymentID,
	}

	subject := fmt.Sprintf("Transfert %s confirmé / Transfer confirmed", view.Reference)
	return d.send(ctx, u.Email, subject, "transfer", view, zap.Int64("transfer_id", t.ID))
}

// SendOrderReceipt mails the payer and the operations inbox. It reports false
// when any delivery failed.
func (d *Dispatcher) SendOrderReceipt(ctx context.Context, o *models.Order, u *models.User, lines []models.OrderLine, paymentID string) bool {
	view := orderView{
		Name:      u.FullName(),
		Reference: OrderReference(o.ID),
		Total:     models.FormatMoney(o.Total, o.Currency),
		ShipTo:    strings.TrimSpace(o.ShippingAddress.FirstName + " " + o.ShippingAddress.LastName),
		ShipPhone: o.ShippingAddress.Phone,
		ShipNote:  o.ShippingAddress.Note,
		PaymentID: paymentID,
	}
	for _, l := range lines {
		name := l.ProductName.Get(models.DefaultLocale)
		if name == "" {
			name = fmt.Sprintf("#%d", l.ProductID)
		}
		view.Lines = append(view.Lines, orderLineView{
			Name:     name,
			Quantity: l.Quantity,
			Total:    models.FormatMoney(l.LineTotal(), o.Currency),
		})
	}

	view.RateLine = RateNotConfigured
	if d.cfg.RateCurrency != "" && d.cfg.RateCurrency != o.Currency {
		view.RateLine = rateLine(o.Currency, d.cfg.RateCurrency, d.currentRate(ctx, o.Currency, d.cfg.RateCurrency))
	}

	subject := fmt.Sprintf("Commande %s confirmée / Order confirmed", view.Reference)
	return d.send(ctx, u.Email, subject, "order", view, zap.Int64("order_id", o.ID))
}

// currentRate returns zero when the pair has no rate.
func (d *Dispatcher) currentRate(ctx context.Context, from, to string) decimal.Decimal {
	if d.rates == nil || from == "" || to == "" {
		return decimal.Zero
	}
	r, err := d.rates.CurrentRate(ctx, from, to)
	if err != nil {
		return decimal.Zero
	}
	return r.Rate
}

func rateLine(from, to string, rate decimal.Decimal) string {
	if !rate.IsPositive() {
		return RateNotConfigured
	}
	return fmt.Sprintf("Taux de change / Exchange rate: 1 %s = %s %s", from, rate.String(), to)
}

func deliveryLabel(t *models.Transfer) string {
	if t.DeliveryMethod == models.DeliveryBank {
		return fmt.Sprintf("bank / banque (%s)", t.BankName)
	}
	return "mobile money"
}

func (d *Dispatcher) send(ctx context.Context, to, subject, name string, view interface{}, field zap.Field) bool {
	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, name+".txt.tmpl", view); err != nil {
		d.logger.Error("failed to render receipt", field, zap.Error(err))
		return false
	}
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html.tmpl", view); err != nil {
		d.logger.Error("failed to render receipt", field, zap.Error(err))
		return false
	}

	addrs := d.recipients(to)
	if len(addrs) == 0 {
		d.logger.Warn("receipt has no recipients", field)
		return false
	}

	var err error
	for _, addr := range addrs {
		msg := Message{To: addr, Subject: subject, Text: text.String(), HTML: html.String()}
		if sendErr := d.mailer.Send(ctx, msg); sendErr != nil {
			err = multierr.Append(err, fmt.Errorf("send to %s: %w", addr, sendErr))
		}
	}
	if err != nil {
		d.logger.Warn("receipt delivery failed",
			field,
			zap.Bool("not_configured", errors.Is(err, ErrNotConfigured)),
			zap.Error(err))
		return false
	}

	d.logger.Info("receipt sent", field, zap.String("to", to))
	return true
}

func (d *Dispatcher) recipients(payer string) []string {
	var out []string
	if payer != "" {
		out = append(out, payer)
	}
	if d.cfg.OpsAddress != "" && !strings.EqualFold(d.cfg.OpsAddress, payer) {
		out = append(out, d.cfg.OpsAddress)
	}
	return out
}
