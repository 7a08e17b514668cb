package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	sandboxBaseURL    = "https://connect.squareupsandbox.com"
	productionBaseURL = "https://connect.squareup.com"
	apiVersion        = "2024-10-17"
	maxRetries        = 3
	initialDelay      = 500 * time.Millisecond
	defaultTimeout    = 30 * time.Second
)

type Config struct {
	AccessToken string
	LocationID  string
	// Environment is "sandbox" or "production"; BaseURL overrides it.
	Environment string
	BaseURL     string
	Timeout     time.Duration
}

// SquareClient creates payments through the Square Payments REST API.
// Server errors and network failures are retried with the same idempotency
// key; declines and other 4xx responses are returned immediately.
type SquareClient struct {
	accessToken string
	locationID  string
	baseURL     string
	client      *http.Client
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

type money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type createPaymentRequest struct {
	SourceID          string `json:"source_id"`
	IdempotencyKey    string `json:"idempotency_key"`
	AmountMoney       money  `json:"amount_money"`
	LocationID        string `json:"location_id,omitempty"`
	BuyerEmailAddress string `json:"buyer_email_address,omitempty"`
	Note              string `json:"note,omitempty"`
	ReferenceID       string `json:"reference_id,omitempty"`
	Autocomplete      bool   `json:"autocomplete"`
}

type apiError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type createPaymentResponse struct {
	Payment *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"payment"`
	Errors []apiError `json:"errors"`
}

func NewSquareClient(cfg Config, logger *zap.Logger) *SquareClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sandboxBaseURL
		if cfg.Environment == "production" {
			baseURL = productionBaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SquareClient{
		accessToken: cfg.AccessToken,
		locationID:  cfg.LocationID,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
		sleep:       sleepContext,
	}
}

// MaxChargeDuration is the longest a single Charge can take with the given
// per-request timeout: every attempt timing out plus the backoff between them.
func MaxChargeDuration(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	total := time.Duration(maxRetries) * timeout
	for attempt := 1; attempt < maxRetries; attempt++ {
		total += time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
	}
	return total
}

// Configured reports whether credentials are present.
func (c *SquareClient) Configured() bool {
	return c.accessToken != ""
}

func (c *SquareClient) Charge(ctx context.Context, req ChargeRequest) (*Payment, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(createPaymentRequest{
		SourceID:          req.SourceToken,
		IdempotencyKey:    req.IdempotencyKey,
		AmountMoney:       money{Amount: req.AmountMinor, Currency: req.Currency},
		LocationID:        c.locationID,
		BuyerEmailAddress: req.BuyerEmail,
		Note:              req.Note,
		ReferenceID:       req.ReferenceID,
		Autocomplete:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// 500ms, 1s
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			c.logger.Warn("retrying payment request",
				zap.String("reference_id", req.ReferenceID),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
		}

		payment, err := c.do(ctx, body)
		if err == nil {
			return payment, nil
		}
		lastErr = err

		gwErr, ok := err.(*Error)
		if !ok || !gwErr.Transient {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *SquareClient) do(ctx context.Context, body []byte) (*Payment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Square-Version", apiVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Reason: ReasonOther, Code: "NETWORK_ERROR", Detail: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Reason: ReasonOther, Code: "READ_ERROR", Detail: err.Error(), StatusCode: resp.StatusCode, Transient: true}
	}

	var parsed createPaymentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil && resp.StatusCode < 500 {
		return nil, &Error{Reason: ReasonOther, Code: "INVALID_RESPONSE", Detail: err.Error(), StatusCode: resp.StatusCode}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &Error{
			Reason:     ReasonOther,
			Code:       firstCode(parsed.Errors, "SERVICE_UNAVAILABLE"),
			Detail:     firstDetail(parsed.Errors, string(respBody)),
			StatusCode: resp.StatusCode,
			Transient:  true,
		}
	}

	if resp.StatusCode != http.StatusOK || len(parsed.Errors) > 0 || parsed.Payment == nil {
		code := firstCode(parsed.Errors, "UNKNOWN")
		category := ""
		if len(parsed.Errors) > 0 {
			category = parsed.Errors[0].Category
		}
		return nil, &Error{
			Reason:     ReasonForCode(code),
			Code:       code,
			Category:   category,
			Detail:     firstDetail(parsed.Errors, ""),
			StatusCode: resp.StatusCode,
		}
	}

	if parsed.Payment.ID == "" {
		return nil, &Error{Reason: ReasonOther, Code: "INVALID_RESPONSE", Detail: "payment id missing", StatusCode: resp.StatusCode}
	}

	return &Payment{ID: parsed.Payment.ID, Status: parsed.Payment.Status}, nil
}

func firstCode(errs []apiError, fallback string) string {
	if len(errs) > 0 && errs[0].Code != "" {
		return errs[0].Code
	}
	return fallback
}

func firstDetail(errs []apiError, fallback string) string {
	if len(errs) > 0 {
		return errs[0].Detail
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
