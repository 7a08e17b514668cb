package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"remit/internal/assistant"
	"remit/internal/gateway"
	"remit/internal/middleware"
	"remit/internal/models"
	"remit/internal/settlement"
	"remit/internal/store"
	"remit/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeCharger struct {
	ChargeFunc func(ctx context.Context, req gateway.ChargeRequest) (*gateway.Payment, error)
	calls      int32
}

func (f *fakeCharger) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Payment, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.ChargeFunc != nil {
		return f.ChargeFunc(ctx, req)
	}
	return &gateway.Payment{ID: "pay_" + req.ReferenceID, Status: "COMPLETED"}, nil
}

type testServer struct {
	server    *Server
	store     *store.MemoryStore
	charger   *fakeCharger
	userAuth  *middleware.Authenticator
	adminAuth *middleware.Authenticator
	user      *models.User
	token     string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	st := store.NewMemoryStore()
	hash, err := utils.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	user := &models.User{Username: "amina", Email: "amina@example.com", PasswordHash: hash, FirstName: "Amina", LastName: "Niyonzima", Role: models.RoleUser}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	rate := &models.ExchangeRate{FromCurrency: "CAD", ToCurrency: "BIF", Rate: decimal.RequireFromString("2850.50")}
	if err := st.CreateRate(ctx, rate); err != nil {
		t.Fatalf("Failed to create rate: %v", err)
	}

	charger := &fakeCharger{}
	svc := settlement.NewService(st, charger, nil, settlement.Config{OrderCurrency: "CAD"}, logger)
	t.Cleanup(svc.Wait)

	asst, err := assistant.New(nil, logger)
	if err != nil {
		t.Fatalf("Failed to load assistant: %v", err)
	}

	ts := &testServer{
		store:     st,
		charger:   charger,
		userAuth:  middleware.NewAuthenticator("user-secret", models.AudienceUser, time.Hour),
		adminAuth: middleware.NewAuthenticator("admin-secret", models.AudienceAdmin, time.Hour),
		user:      user,
	}
	ts.server = NewServer(Deps{
		Store:      st,
		Settlement: svc,
		Assistant:  asst,
		UserAuth:   ts.userAuth,
		AdminAuth:  ts.adminAuth,
		Status:     Status{Gateway: true},
		Logger:     logger,
	})
	ts.token = ts.tokenFor(t, user.ID)
	return ts
}

func (ts *testServer) tokenFor(t *testing.T, userID int64) string {
	t.Helper()
	token, err := ts.userAuth.GenerateToken(userID, models.RoleUser)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

// adminToken signs a token for an active admin account, creating it on first use.
func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	a, err := ts.store.GetAdminByUsername(ctx, "console")
	if errors.Is(err, store.ErrNotFound) {
		a = &models.Admin{Username: "console", Email: "console@example.com", PasswordHash: "x", Role: models.RoleAdmin, Active: true}
		err = ts.store.CreateAdmin(ctx, a)
	}
	if err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}
	token, err := ts.adminAuth.GenerateToken(a.ID, models.RoleAdmin)
	if err != nil {
		t.Fatalf("Failed to generate admin token: %v", err)
	}
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("Failed to marshal request payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func transferPayload() models.CreateTransferRequest {
	return models.CreateTransferRequest{
		Amount:              decimal.RequireFromString("100.00"),
		Currency:            "CAD",
		RecipientName:       "Jean Ndayishimiye",
		RecipientPhone:      "+25779000000",
		DestinationCountry:  "Burundi",
		DestinationCurrency: "BIF",
		DeliveryMethod:      models.DeliveryMobile,
	}
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp healthResponse
	decodeBody(t, w, &resp)
	if !resp.Checks["database"] || !resp.Checks["payments"] {
		t.Errorf("Unexpected checks %+v", resp.Checks)
	}
	if resp.Checks["mail"] || resp.Checks["assistant"] {
		t.Errorf("Unconfigured integrations should report false: %+v", resp.Checks)
	}
}

func TestRegister(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name           string
		payload        models.RegisterRequest
		expectedStatus int
	}{
		{"Valid User", models.RegisterRequest{Username: "eric", Email: "Eric@Example.com", Password: "long-enough"}, http.StatusCreated},
		{"Duplicate Email", models.RegisterRequest{Username: "other", Email: "amina@example.com", Password: "long-enough"}, http.StatusBadRequest},
		{"Invalid Email", models.RegisterRequest{Username: "x", Email: "not-an-email", Password: "long-enough"}, http.StatusBadRequest},
		{"Short Password", models.RegisterRequest{Username: "y", Email: "y@example.com", Password: "short"}, http.StatusBadRequest},
		{"Missing Fields", models.RegisterRequest{Email: "z@example.com"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/auth/register", "", tt.payload)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestLogin(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "amina@example.com", Password: "s3cret-pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.LoginResponse
	decodeBody(t, w, &resp)
	if resp.UserID != ts.user.ID || resp.Token == "" {
		t.Errorf("Unexpected login response %+v", resp)
	}

	me := ts.do(t, http.MethodGet, "/api/auth/me", resp.Token, nil)
	if me.Code != http.StatusOK {
		t.Errorf("Expected issued token to work, got %d", me.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "amina@example.com", Password: "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestUpdateProfileAndPassword(t *testing.T) {
	ts := setupTestServer(t)

	phone := "+15145550000"
	w := ts.do(t, http.MethodPut, "/api/auth/me", ts.token, models.UpdateProfileRequest{Phone: &phone})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var u models.User
	decodeBody(t, w, &u)
	if u.Phone != phone || u.FirstName != "Amina" {
		t.Errorf("Only phone should change, got %+v", u)
	}

	w = ts.do(t, http.MethodPut, "/api/auth/password", ts.token, models.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "new-password"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for wrong current password, got %d", w.Code)
	}
	w = ts.do(t, http.MethodPut, "/api/auth/password", ts.token, models.ChangePasswordRequest{CurrentPassword: "s3cret-pass", NewPassword: "new-password"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	w = ts.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "amina@example.com", Password: "new-password"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected login with new password, got %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name  string
		path  string
		token string
	}{
		{"No Token", "/api/transfers", ""},
		{"Garbage Token", "/api/transfers", "not-a-jwt"},
		{"Admin Token On User Route", "/api/transfers", ts.adminToken(t)},
		{"User Token On Admin Route", "/api/admin/exchange-rates", ts.token},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, tt.path, tt.token, nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected status 401, got %d", w.Code)
			}
		})
	}
}

func TestTransferLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/transfers", ts.token, transferPayload())
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var tr models.Transfer
	decodeBody(t, w, &tr)
	if !tr.ReceivedAmount.Equal(decimal.RequireFromString("285050")) {
		t.Errorf("Expected received amount 285050, got %s", tr.ReceivedAmount)
	}
	path := "/api/transfers/" + strconv.FormatInt(tr.ID, 10)

	w = ts.do(t, http.MethodPost, path+"/pay", ts.token, models.PaymentRequest{PaymentToken: "cnon:card-nonce-ok"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var receipt settlement.TransferReceipt
	decodeBody(t, w, &receipt)
	if receipt.Status != models.TransferStatusCompleted || receipt.PaymentID == "" {
		t.Errorf("Unexpected receipt %+v", receipt)
	}

	w = ts.do(t, http.MethodPost, path+"/pay", ts.token, models.PaymentRequest{PaymentToken: "cnon:card-nonce-ok"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400 on second payment, got %d", w.Code)
	}
	var errResp errorResponse
	decodeBody(t, w, &errResp)
	if errResp.Error != string(settlement.KindAlreadyProcessed) {
		t.Errorf("Expected already_processed_error, got %s", errResp.Error)
	}
	if n := atomic.LoadInt32(&ts.charger.calls); n != 1 {
		t.Errorf("Expected exactly one charge, got %d", n)
	}

	w = ts.do(t, http.MethodGet, path, ts.token, nil)
	var fetched models.Transfer
	decodeBody(t, w, &fetched)
	if fetched.Status != models.TransferStatusCompleted {
		t.Errorf("Expected completed, got %s", fetched.Status)
	}

	w = ts.do(t, http.MethodGet, "/api/transfers", ts.token, nil)
	var list []models.Transfer
	decodeBody(t, w, &list)
	if len(list) != 1 {
		t.Errorf("Expected 1 transfer, got %d", len(list))
	}
}

func TestTransferOwnership(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/transfers", ts.token, transferPayload())
	var tr models.Transfer
	decodeBody(t, w, &tr)
	path := "/api/transfers/" + strconv.FormatInt(tr.ID, 10)

	other := &models.User{Username: "other", Email: "other@example.com", PasswordHash: "x", Role: models.RoleUser}
	if err := ts.store.CreateUser(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	otherToken := ts.tokenFor(t, other.ID)

	if w := ts.do(t, http.MethodGet, path, otherToken, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 on read, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, path+"/pay", otherToken, models.PaymentRequest{PaymentToken: "cnon:ok"}); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 on pay, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/transfers/999", ts.token, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/transfers/abc", ts.token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestPayTransferDeclined(t *testing.T) {
	ts := setupTestServer(t)
	ts.charger.ChargeFunc = func(ctx context.Context, req gateway.ChargeRequest) (*gateway.Payment, error) {
		return nil, &gateway.Error{Reason: gateway.ReasonInsufficientFunds, Code: "INSUFFICIENT_FUNDS", Detail: "card 4000...0002", StatusCode: 402}
	}

	w := ts.do(t, http.MethodPost, "/api/transfers", ts.token, transferPayload())
	var tr models.Transfer
	decodeBody(t, w, &tr)

	w = ts.do(t, http.MethodPost, "/api/transfers/"+strconv.FormatInt(tr.ID, 10)+"/pay", ts.token, models.PaymentRequest{PaymentToken: "cnon:declined"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	var errResp errorResponse
	decodeBody(t, w, &errResp)
	if errResp.Error != string(settlement.KindPayment) || errResp.Reason != string(gateway.ReasonInsufficientFunds) {
		t.Errorf("Unexpected error body %+v", errResp)
	}
	if errResp.Message != gateway.ReasonInsufficientFunds.UserMessage() {
		t.Errorf("Provider detail must not leak, got %q", errResp.Message)
	}
}

func TestCreateOrderPaymentFailureReportsOrderID(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	p := &models.Product{Slug: "riz", Name: models.Localized{FR: "Riz", EN: "Rice"}, Price: decimal.RequireFromString("31.25"), Currency: "CAD", InStock: true, Active: true}
	if err := ts.store.CreateProduct(ctx, p); err != nil {
		t.Fatal(err)
	}
	ts.charger.ChargeFunc = func(ctx context.Context, req gateway.ChargeRequest) (*gateway.Payment, error) {
		return nil, &gateway.Error{Reason: gateway.ReasonCardDeclined, Code: "CARD_DECLINED", StatusCode: 402}
	}

	payload := models.CreateOrderRequest{
		Items:        []models.OrderItemRequest{{ProductID: p.ID, Quantity: 2}},
		Shipping:     models.ShippingInfo{FirstName: "Jean", LastName: "Ndayishimiye", Phone: "+25779000000"},
		PaymentToken: "cnon:declined",
	}
	w := ts.do(t, http.MethodPost, "/api/orders", ts.token, payload)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d: %s", w.Code, w.Body.String())
	}
	var errResp errorResponse
	decodeBody(t, w, &errResp)
	if errResp.OrderID == 0 {
		t.Fatal("Expected order_id in the error body")
	}

	o, err := ts.store.GetOrder(ctx, errResp.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != models.OrderStatusPending || !o.Total.Equal(decimal.RequireFromString("62.50")) {
		t.Errorf("Unexpected stored order %+v", o)
	}

	ts.charger.ChargeFunc = nil
	w = ts.do(t, http.MethodPost, "/api/orders/"+strconv.FormatInt(o.ID, 10)+"/pay", ts.token, models.PaymentRequest{PaymentToken: "cnon:ok"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected retry to succeed, got %d: %s", w.Code, w.Body.String())
	}
	var receipt settlement.OrderReceipt
	decodeBody(t, w, &receipt)
	if receipt.Status != models.OrderStatusProcessing {
		t.Errorf("Expected processing, got %s", receipt.Status)
	}
}

func TestExchangeRateLookup(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name           string
		query          string
		expectedStatus int
	}{
		{"Existing Pair", "?from=cad&to=bif", http.StatusOK},
		{"Missing Pair", "?from=USD&to=BIF", http.StatusNotFound},
		{"Bad Code", "?from=CA&to=BIF", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, "/api/exchange-rates"+tt.query, "", nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestAdminRateCRUD(t *testing.T) {
	ts := setupTestServer(t)
	admin := ts.adminToken(t)

	w := ts.do(t, http.MethodPost, "/api/admin/exchange-rates", admin, models.ExchangeRateRequest{FromCurrency: "usd", ToCurrency: "bif", Rate: decimal.RequireFromString("2900")})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var rate models.ExchangeRate
	decodeBody(t, w, &rate)
	if rate.FromCurrency != "USD" || rate.ToCurrency != "BIF" {
		t.Errorf("Expected normalized codes, got %s/%s", rate.FromCurrency, rate.ToCurrency)
	}

	w = ts.do(t, http.MethodPost, "/api/admin/exchange-rates", admin, models.ExchangeRateRequest{FromCurrency: "USD", ToCurrency: "BIF", Rate: decimal.Zero})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for zero rate, got %d", w.Code)
	}

	path := "/api/admin/exchange-rates/" + strconv.FormatInt(rate.ID, 10)
	if w := ts.do(t, http.MethodDelete, path, admin, nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodDelete, path, admin, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for second delete, got %d", w.Code)
	}
}

func TestAdminProductsAndLocalizedCatalog(t *testing.T) {
	ts := setupTestServer(t)
	admin := ts.adminToken(t)

	w := ts.do(t, http.MethodPost, "/api/admin/categories", admin, map[string]interface{}{
		"name": map[string]string{"fr": "Épicerie", "en": "Groceries"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var cat models.Category
	decodeBody(t, w, &cat)
	if cat.Slug != "epicerie" || !cat.Active {
		t.Errorf("Unexpected category %+v", cat)
	}

	w = ts.do(t, http.MethodPost, "/api/admin/products", admin, map[string]interface{}{
		"category_id": cat.ID,
		"name":        map[string]string{"fr": "Riz parfumé", "en": "Fragrant rice"},
		"price":       "31.25",
		"currency":    "cad",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/api/products?lang=en&category_id="+strconv.FormatInt(cat.ID, 10), "", nil)
	var products []models.ProductView
	decodeBody(t, w, &products)
	if len(products) != 1 || products[0].Name != "Fragrant rice" || products[0].Currency != "CAD" {
		t.Errorf("Unexpected products %+v", products)
	}

	w = ts.do(t, http.MethodGet, "/api/categories", "", nil)
	var categories []models.CategoryView
	decodeBody(t, w, &categories)
	if len(categories) != 1 || categories[0].Name != "Épicerie" {
		t.Errorf("Expected French default, got %+v", categories)
	}

	w = ts.do(t, http.MethodPost, "/api/admin/products", admin, map[string]interface{}{
		"name": map[string]string{"fr": "Gratuit"}, "price": "0", "currency": "CAD",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for zero price, got %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/admin/products", admin, map[string]interface{}{
		"name": map[string]string{"fr": "Sucre"}, "price": "10.005", "currency": "CAD",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for sub-cent price, got %d", w.Code)
	}
}

func TestAdminLogin(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	hash, _ := utils.HashPassword("admin-pass")
	active := &models.Admin{Username: "ops", Email: "ops@example.com", PasswordHash: hash, Role: models.RoleAdmin, Active: true}
	disabled := &models.Admin{Username: "former", Email: "former@example.com", PasswordHash: hash, Role: models.RoleAdmin, Active: false}
	for _, a := range []*models.Admin{active, disabled} {
		if err := ts.store.CreateAdmin(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name           string
		payload        models.AdminLoginRequest
		expectedStatus int
	}{
		{"Valid Admin", models.AdminLoginRequest{Username: "ops", Password: "admin-pass"}, http.StatusOK},
		{"Wrong Password", models.AdminLoginRequest{Username: "ops", Password: "nope"}, http.StatusUnauthorized},
		{"Inactive Admin", models.AdminLoginRequest{Username: "former", Password: "admin-pass"}, http.StatusUnauthorized},
		{"Unknown Admin", models.AdminLoginRequest{Username: "ghost", Password: "admin-pass"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/admin/login", "", tt.payload)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestAdminRoutesRecheckAccount(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	disabled := &models.Admin{Username: "former", Email: "former@example.com", PasswordHash: "x", Role: models.RoleAdmin, Active: false}
	if err := ts.store.CreateAdmin(ctx, disabled); err != nil {
		t.Fatal(err)
	}
	tokenFor := func(id int64) string {
		token, err := ts.adminAuth.GenerateToken(id, models.RoleAdmin)
		if err != nil {
			t.Fatalf("Failed to generate admin token: %v", err)
		}
		return token
	}

	tests := []struct {
		name           string
		token          string
		expectedStatus int
	}{
		{"Active Admin", ts.adminToken(t), http.StatusOK},
		{"Disabled Admin", tokenFor(disabled.ID), http.StatusUnauthorized},
		{"Deleted Admin", tokenFor(9999), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, "/api/admin/exchange-rates", tt.token, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestWriteTimeoutCoversChargeBudget(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{"default", 0},
		{"thirty seconds", 30 * time.Second},
		{"slow gateway", 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget := gateway.MaxChargeDuration(tt.timeout)
			srv := NewServer(Deps{
				ChargeBudget: budget,
				Store:        store.NewMemoryStore(),
				UserAuth:     middleware.NewAuthenticator("user-secret", models.AudienceUser, time.Hour),
				AdminAuth:    middleware.NewAuthenticator("admin-secret", models.AudienceAdmin, time.Hour),
				Logger:       zap.NewNop(),
			})
			if srv.httpServer.WriteTimeout <= budget {
				t.Errorf("WriteTimeout %s does not cover charge budget %s", srv.httpServer.WriteTimeout, budget)
			}
		})
	}
}

func TestChat(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/chat", "", chatRequest{Message: "Quel est le taux ?"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 without a backend, got %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/chat", "", chatRequest{Message: "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty message, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/chat/suggestions?lang=en", "", nil)
	var resp map[string][]string
	decodeBody(t, w, &resp)
	if len(resp["suggestions"]) == 0 {
		t.Error("Expected suggestions")
	}
}

func TestInvalidBody(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/transfers", bytes.NewBufferString(`{"amount": "10"} {"extra": true}`))
	req.Header.Set("Authorization", "Bearer "+ts.token)
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
