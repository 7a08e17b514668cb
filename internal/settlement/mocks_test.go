package settlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"remit/internal/gateway"
	"remit/internal/models"
	"remit/internal/store"
)

type mockCharger struct {
	ChargeFunc func(ctx context.Context, req gateway.ChargeRequest) (*gateway.Payment, error)

	calls int32
	mu    sync.Mutex
	reqs  []gateway.ChargeRequest
}

func (m *mockCharger) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Payment, error) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()

	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	return &gateway.Payment{ID: "pay_ok", Status: "COMPLETED"}, nil
}

func (m *mockCharger) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

func (m *mockCharger) LastRequest() gateway.ChargeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqs[len(m.reqs)-1]
}

func (m *mockCharger) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, len(m.reqs))
	for i, r := range m.reqs {
		keys[i] = r.IdempotencyKey
	}
	return keys
}

// completionStore fails the next completions after the charge went through.
type completionStore struct {
	*store.MemoryStore
	failures int32
}

func (s *completionStore) fail() bool {
	return atomic.AddInt32(&s.failures, -1) >= 0
}

func (s *completionStore) CompleteTransfer(ctx context.Context, id int64, paymentID string) error {
	if s.fail() {
		return errors.New("connection lost")
	}
	return s.MemoryStore.CompleteTransfer(ctx, id, paymentID)
}

func (s *completionStore) CompleteOrder(ctx context.Context, id int64, paymentID, status string) error {
	if s.fail() {
		return errors.New("connection lost")
	}
	return s.MemoryStore.CompleteOrder(ctx, id, paymentID, status)
}

type mockNotifier struct {
	SendTransferReceiptFunc func(ctx context.Context, t *models.Transfer, u *models.User, paymentID, method string) bool
	SendOrderReceiptFunc    func(ctx context.Context, o *models.Order, u *models.User, lines []models.OrderLine, paymentID string) bool

	transferReceipts int32
	orderReceipts    int32
	mu               sync.Mutex
	lastLines        []models.OrderLine
}

func (m *mockNotifier) SendTransferReceipt(ctx context.Context, t *models.Transfer, u *models.User, paymentID, method string) bool {
	atomic.AddInt32(&m.transferReceipts, 1)
	if m.SendTransferReceiptFunc != nil {
		return m.SendTransferReceiptFunc(ctx, t, u, paymentID, method)
	}
	return true
}

func (m *mockNotifier) SendOrderReceipt(ctx context.Context, o *models.Order, u *models.User, lines []models.OrderLine, paymentID string) bool {
	atomic.AddInt32(&m.orderReceipts, 1)
	m.mu.Lock()
	m.lastLines = lines
	m.mu.Unlock()
	if m.SendOrderReceiptFunc != nil {
		return m.SendOrderReceiptFunc(ctx, o, u, lines, paymentID)
	}
	return true
}
