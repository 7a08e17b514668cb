package settlement

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"remit/internal/gateway"
	"remit/internal/models"
)

func (e *testEnv) createProduct(t *testing.T, slug, price string) *models.Product {
	t.Helper()
	p := &models.Product{
		Slug:     slug,
		Name:     models.Localized{FR: "Produit " + slug, EN: "Product " + slug},
		Price:    decimal.RequireFromString(price),
		Currency: "CAD",
		InStock:  true,
		Active:   true,
	}
	if err := e.store.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	return p
}

func testShipping() models.ShippingInfo {
	return models.ShippingInfo{FirstName: "Jean", LastName: "Ndayishimiye", Phone: "+25779000000", Note: "Bujumbura"}
}

func priceOf(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateOrderComputesDecimalTotal(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.createProduct(t, "riz", "20.00")
	p3 := env.createProduct(t, "huile", "12.10")

	order, err := env.svc.CreateOrder(context.Background(), env.user.ID, []models.OrderItemRequest{
		{ProductID: p1.ID, Quantity: 2, Price: priceOf("31.25")},
		{ProductID: p3.ID, Quantity: 1, Price: priceOf("31.25")},
	}, testShipping(), "CAD", "")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if !order.Total.Equal(decimal.RequireFromString("93.75")) {
		t.Errorf("Expected total 93.75, got %s", order.Total)
	}
	if order.Status != models.OrderStatusPending {
		t.Errorf("Expected pending without a token, got %s", order.Status)
	}
	if env.charger.Calls() != 0 {
		t.Errorf("Gateway should not be called without a token")
	}

	stored, err := env.store.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(stored.Items))
	}
	for _, item := range stored.Items {
		if !item.Price.Equal(decimal.RequireFromString("31.25")) {
			t.Errorf("Expected custom price snapshot 31.25, got %s", item.Price)
		}
	}
}

func TestCreateOrderCustomPricePrecision(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		currency string
		kind     Kind
		total    string
	}{
		{"cents", "10.50", "CAD", "", "31.50"},
		{"trailing zeros", "10.000", "CAD", "", "30"},
		{"sub-cent", "10.005", "CAD", KindAmountValidation, ""},
		{"whole yen", "100", "JPY", "", "300"},
		{"fractional yen", "100.5", "JPY", KindAmountValidation, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := env.createProduct(t, "riz", "20.00")

			order, err := env.svc.CreateOrder(context.Background(), env.user.ID, []models.OrderItemRequest{
				{ProductID: p.ID, Quantity: 3, Price: priceOf(tt.price)},
			}, testShipping(), tt.currency, "tok")
			if tt.kind != "" {
				assertKind(t, err, tt.kind)
				if env.charger.Calls() != 0 {
					t.Errorf("Gateway should not be called, got %d calls", env.charger.Calls())
				}
				orders, _ := env.store.ListOrdersByUser(context.Background(), env.user.ID)
				if len(orders) != 0 {
					t.Errorf("Expected no stored orders, got %d", len(orders))
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateOrder failed: %v", err)
			}
			if !order.Total.Equal(decimal.RequireFromString(tt.total)) {
				t.Errorf("Expected total %s, got %s", tt.total, order.Total)
			}
			want := decimal.RequireFromString(tt.total).Shift(models.MinorExponent(tt.currency)).IntPart()
			if got := env.charger.LastRequest().AmountMinor; got != want {
				t.Errorf("Expected %d minor units, got %d", want, got)
			}
		})
	}
}

func TestCreateOrderUsesCatalogPrice(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "savon", "0.10")

	order, err := env.svc.CreateOrder(context.Background(), env.user.ID, []models.OrderItemRequest{
		{ProductID: p.ID, Quantity: 3},
	}, testShipping(), "", "")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	// 0.1 * 3 in float64 is 0.30000000000000004.
	if !order.Total.Equal(decimal.RequireFromString("0.30")) {
		t.Errorf("Expected 0.30, got %s", order.Total)
	}
	if order.Currency != "CAD" {
		t.Errorf("Expected default currency CAD, got %s", order.Currency)
	}
}

func TestCreateOrderMissingProductLeavesNothing(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "riz", "20.00")

	_, err := env.svc.CreateOrder(context.Background(), env.user.ID, []models.OrderItemRequest{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: 404, Quantity: 1},
	}, testShipping(), "CAD", "tok")
	sErr := assertKind(t, err, KindValidation)
	if sErr.Message != "Product 404 not found." {
		t.Errorf("Expected message naming the product, got %q", sErr.Message)
	}

	orders, err := env.store.ListOrdersByUser(context.Background(), env.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 {
		t.Errorf("Expected no orders, got %d", len(orders))
	}
	if env.charger.Calls() != 0 {
		t.Errorf("Gateway should not be called")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "riz", "20.00")
	inactive := env.createProduct(t, "ancien", "5.00")
	inactive.Active = false
	if err := env.store.UpdateProduct(context.Background(), inactive); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		items    []models.OrderItemRequest
		shipping models.ShippingInfo
		currency string
		kind     Kind
	}{
		{"no items", nil, testShipping(), "CAD", KindValidation},
		{"zero quantity", []models.OrderItemRequest{{ProductID: p.ID, Quantity: 0}}, testShipping(), "CAD", KindValidation},
		{"inactive product", []models.OrderItemRequest{{ProductID: inactive.ID, Quantity: 1}}, testShipping(), "CAD", KindValidation},
		{"negative custom price", []models.OrderItemRequest{{ProductID: p.ID, Quantity: 1, Price: priceOf("-1")}}, testShipping(), "CAD", KindAmountValidation},
		{"missing shipping phone", []models.OrderItemRequest{{ProductID: p.ID, Quantity: 1}}, models.ShippingInfo{FirstName: "Jean", LastName: "N"}, "CAD", KindValidation},
		{"currency mismatch", []models.OrderItemRequest{{ProductID: p.ID, Quantity: 1}}, testShipping(), "EUR", KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateOrder(context.Background(), env.user.ID, tt.items, tt.shipping, tt.currency, "")
			assertKind(t, err, tt.kind)
		})
	}
}

func TestCreateOrderSettlesWithToken(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "riz", "20.00")

	order, err := env.svc.CreateOrder(context.Background(), env.user.ID, []models.OrderItemRequest{
		{ProductID: p.ID, Quantity: 2},
	}, testShipping(), "CAD", "cnon:ok")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.Status != models.OrderStatusProcessing || order.PaymentID != "pay_ok" {
		t.Errorf("Unexpected order: %+v", order)
	}

	req := env.charger.LastRequest()
	if req.AmountMinor != 4000 || req.ReferenceID != "order-"+idString(order.ID) {
		t.Errorf("Unexpected charge: %+v", req)
	}

	stored, _ := env.store.GetOrder(context.Background(), order.ID)
	if stored.Status != models.OrderStatusProcessing || stored.PaymentID != "pay_ok" {
		t.Errorf("Unexpected stored order: %+v", stored)
	}

	env.svc.Wait()
	if env.notifier.orderReceipts != 1 {
		t.Fatalf("Expected 1 order receipt, got %d", env.notifier.orderReceipts)
	}
	if len(env.notifier.lastLines) != 1 || env.notifier.lastLines[0].ProductName.EN != "Product riz" {
		t.Errorf("Unexpected receipt lines: %+v", env.notifier.lastLines)
	}
}

func TestCreateOrderGatewayFailureKeepsPendingOrder(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "riz", "20.00")
	env.charger.ChargeFunc = func(ctx context.Context, req gateway.ChargeRequest) (*gateway.Payment, error) {
		return nil, &gateway.Error{Reason: gateway.ReasonCardDeclined, Code: "CARD_DECLINED", StatusCode: 402}
	}

	order, err := env.svc.CreateOrder(context.Background(), env.user.ID, []models.OrderItemRequest{
		{ProductID: p.ID, Quantity: 1},
	}, testShipping(), "CAD", "tok")
	sErr := assertKind(t, err, KindPayment)
	if sErr.Reason != gateway.ReasonCardDeclined {
		t.Errorf("Expected card_declined, got %s", sErr.Reason)
	}
	if order == nil {
		t.Fatal("Expected the pending order to be returned")
	}

	stored, err := env.store.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("Order should still exist: %v", err)
	}
	if stored.Status != models.OrderStatusPending {
		t.Errorf("Expected pending, got %s", stored.Status)
	}

	// The order can be paid later through the isolated path.
	env.charger.ChargeFunc = nil
	receipt, err := env.svc.SettleOrder(context.Background(), idString(order.ID), "tok-2", env.user.ID)
	if err != nil {
		t.Fatalf("SettleOrder failed: %v", err)
	}
	if receipt.Status != models.OrderStatusProcessing {
		t.Errorf("Expected processing, got %s", receipt.Status)
	}
}

func TestSettleOrderGuards(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "riz", "20.00")
	other := env.createUser(t, "other@example.com")
	ctx := context.Background()

	order, err := env.svc.CreateOrder(ctx, env.user.ID, []models.OrderItemRequest{{ProductID: p.ID, Quantity: 1}}, testShipping(), "CAD", "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.svc.SettleOrder(ctx, idString(order.ID), "tok", other.ID)
	assertKind(t, err, KindAuthorization)

	_, err = env.svc.SettleOrder(ctx, "x", "tok", env.user.ID)
	assertKind(t, err, KindValidation)

	_, err = env.svc.SettleOrder(ctx, idString(order.ID), "", env.user.ID)
	assertKind(t, err, KindValidation)

	_, err = env.svc.SettleOrder(ctx, "777", "tok", env.user.ID)
	assertKind(t, err, KindNotFound)

	if env.charger.Calls() != 0 {
		t.Fatalf("Gateway should not be called yet, got %d", env.charger.Calls())
	}

	if _, err := env.svc.SettleOrder(ctx, idString(order.ID), "tok", env.user.ID); err != nil {
		t.Fatalf("SettleOrder failed: %v", err)
	}
	_, err = env.svc.SettleOrder(ctx, idString(order.ID), "tok", env.user.ID)
	assertKind(t, err, KindAlreadyProcessed)

	if env.charger.Calls() != 1 {
		t.Errorf("Expected 1 gateway call, got %d", env.charger.Calls())
	}
}

func (e *testEnv) createPendingOrder(t *testing.T) *models.Order {
	t.Helper()
	p := e.createProduct(t, "riz", "20.00")
	order, err := e.svc.CreateOrder(context.Background(), e.user.ID, []models.OrderItemRequest{
		{ProductID: p.ID, Quantity: 1},
	}, testShipping(), "CAD", "")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	return order
}

func TestSettleOrderConcurrentChargesOnce(t *testing.T) {
	env := newTestEnv(t)
	order := env.createPendingOrder(t)

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.SettleOrder(context.Background(), idString(order.ID), "tok", env.user.ID)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if KindOf(err) != KindAlreadyProcessed {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("Expected exactly 1 success, got %d", succeeded)
	}
	if env.charger.Calls() != 1 {
		t.Errorf("Expected 1 gateway call, got %d", env.charger.Calls())
	}
}

func TestSettleOrderHeldClaimRejectsSecondCaller(t *testing.T) {
	env := newTestEnv(t)
	order := env.createPendingOrder(t)
	ctx := context.Background()

	if _, err := env.store.ClaimOrder(ctx, order.ID, env.svc.staleBefore(), "or-held"); err != nil {
		t.Fatalf("ClaimOrder failed: %v", err)
	}

	_, err := env.svc.SettleOrder(ctx, idString(order.ID), "tok", env.user.ID)
	assertKind(t, err, KindAlreadyProcessed)
	if env.charger.Calls() != 0 {
		t.Fatalf("Gateway should not be called while the claim is held, got %d", env.charger.Calls())
	}

	// Once the holder's claim goes stale the order can be settled, under its key.
	env.expireClaims()
	if _, err := env.svc.SettleOrder(ctx, idString(order.ID), "tok", env.user.ID); err != nil {
		t.Fatalf("SettleOrder after stale claim failed: %v", err)
	}
	if key := env.charger.LastRequest().IdempotencyKey; key != "or-held" {
		t.Errorf("Expected the held key to be replayed, got %s", key)
	}
}

func TestSettleOrderRetryAfterLostCompletionReusesKey(t *testing.T) {
	env := newTestEnv(t)
	order := env.createPendingOrder(t)
	env.svc.store = &completionStore{MemoryStore: env.store, failures: 1}
	ctx := context.Background()

	_, err := env.svc.SettleOrder(ctx, idString(order.ID), "tok", env.user.ID)
	assertKind(t, err, KindSystem)

	_, err = env.svc.SettleOrder(ctx, idString(order.ID), "tok", env.user.ID)
	assertKind(t, err, KindAlreadyProcessed)

	env.expireClaims()
	if _, err := env.svc.SettleOrder(ctx, idString(order.ID), "tok", env.user.ID); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	keys := env.charger.Keys()
	if len(keys) != 2 || keys[0] != keys[1] {
		t.Errorf("Expected the retry to replay the first key, got %v", keys)
	}
	stored, _ := env.store.GetOrder(ctx, order.ID)
	if stored.Status != models.OrderStatusProcessing {
		t.Errorf("Expected processing, got %s", stored.Status)
	}
}

func TestSettleOrderUnknownOutcomeKeepsKey(t *testing.T) {
	env := newTestEnv(t)
	order := env.createPendingOrder(t)
	ctx := context.Background()

	env.charger.ChargeFunc = func(ctx context.Context, req gateway.ChargeRequest) (*gateway.Payment, error) {
		return nil, &gateway.Error{Reason: gateway.ReasonOther, Code: "INVALID_RESPONSE", StatusCode: 200}
	}
	_, err := env.svc.SettleOrder(ctx, idString(order.ID), "tok", env.user.ID)
	assertKind(t, err, KindPayment)

	env.charger.ChargeFunc = func(ctx context.Context, req gateway.ChargeRequest) (*gateway.Payment, error) {
		return nil, &gateway.Error{Reason: gateway.ReasonOther, Code: gateway.CodeKeyReused, StatusCode: 400}
	}
	_, err = env.svc.SettleOrder(ctx, idString(order.ID), "tok-2", env.user.ID)
	assertKind(t, err, KindAlreadyProcessed)

	stored, _ := env.store.GetOrder(ctx, order.ID)
	if stored.Status != models.OrderStatusPending {
		t.Errorf("Expected pending, got %s", stored.Status)
	}
	keys := env.charger.Keys()
	if len(keys) != 2 || keys[0] != keys[1] {
		t.Errorf("Expected both attempts to share one key, got %v", keys)
	}
}

func TestSettleOrderReceiptFailureIsIsolated(t *testing.T) {
	tests := []struct {
		name string
		send func(ctx context.Context, o *models.Order, u *models.User, lines []models.OrderLine, paymentID string) bool
	}{
		{"delivery error", func(ctx context.Context, o *models.Order, u *models.User, lines []models.OrderLine, paymentID string) bool {
			return false
		}},
		{"panic", func(ctx context.Context, o *models.Order, u *models.User, lines []models.OrderLine, paymentID string) bool {
			panic("smtp exploded")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.notifier.SendOrderReceiptFunc = tt.send
			order := env.createPendingOrder(t)

			receipt, err := env.svc.SettleOrder(context.Background(), idString(order.ID), "tok", env.user.ID)
			if err != nil {
				t.Fatalf("SettleOrder failed: %v", err)
			}
			env.svc.Wait()

			if receipt.Status != models.OrderStatusProcessing || receipt.PaymentID != "pay_ok" {
				t.Errorf("Unexpected receipt: %+v", receipt)
			}
			stored, _ := env.store.GetOrder(context.Background(), order.ID)
			if stored.Status != models.OrderStatusProcessing {
				t.Errorf("Expected processing order, got %s", stored.Status)
			}
			if env.notifier.orderReceipts != 1 {
				t.Errorf("Expected 1 receipt attempt, got %d", env.notifier.orderReceipts)
			}
		})
	}
}
