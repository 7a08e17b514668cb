package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"remit/internal/models"
)

// MemoryStore holds every table in maps guarded by one RWMutex. It enforces
// the same uniqueness, reference and claim rules as PostgresStore and backs
// DB_DRIVER=memory and the flow tests.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	nextID map[string]int64

	users      map[int64]models.User
	admins     map[int64]models.Admin
	categories map[int64]models.Category
	products   map[int64]models.Product
	services   map[int64]models.Service
	rates      map[int64]models.ExchangeRate
	transfers  map[int64]memTransfer
	orders     map[int64]memOrder
}

type memTransfer struct {
	models.Transfer
	settlingAt *time.Time
	settleKey  string
}

type memOrder struct {
	models.Order
	settlingAt *time.Time
	settleKey  string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:        time.Now,
		nextID:     make(map[string]int64),
		users:      make(map[int64]models.User),
		admins:     make(map[int64]models.Admin),
		categories: make(map[int64]models.Category),
		products:   make(map[int64]models.Product),
		services:   make(map[int64]models.Service),
		rates:      make(map[int64]models.ExchangeRate),
		transfers:  make(map[int64]memTransfer),
		orders:     make(map[int64]memOrder),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// Users

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = strings.ToLower(u.Email)
	for _, existing := range s.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return ErrDuplicate
		}
	}
	u.ID = s.id("users")
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUserProfile(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Phone = u.Phone
	existing.UpdatedAt = s.now()
	s.users[u.ID] = existing
	u.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *MemoryStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

// Admins

func (s *MemoryStore) CreateAdmin(ctx context.Context, a *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.Email = strings.ToLower(a.Email)
	for _, existing := range s.admins {
		if existing.Email == a.Email || existing.Username == a.Username {
			return ErrDuplicate
		}
	}
	a.ID = s.id("admins")
	a.CreatedAt = s.now()
	s.admins[a.ID] = *a
	return nil
}

func (s *MemoryStore) GetAdminByID(ctx context.Context, id int64) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.admins[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) GetAdminByUsername(ctx context.Context, username string) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.admins {
		if a.Username == username {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

// Transfers

func (s *MemoryStore) CreateTransfer(ctx context.Context, t *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[t.UserID]; !ok {
		return ErrInvalidReference
	}
	if t.Status == "" {
		t.Status = models.TransferStatusPending
	}
	t.ID = s.id("transfers")
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	s.transfers[t.ID] = memTransfer{Transfer: *t}
	return nil
}

func (s *MemoryStore) GetTransfer(ctx context.Context, id int64) (*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := t.Transfer
	return &out, nil
}

func (s *MemoryStore) ListTransfersByUser(ctx context.Context, userID int64) ([]models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfers := []models.Transfer{}
	for _, t := range s.transfers {
		if t.UserID == userID {
			transfers = append(transfers, t.Transfer)
		}
	}
	sort.Slice(transfers, func(i, j int) bool { return transfers[i].ID > transfers[j].ID })
	return transfers, nil
}

func (s *MemoryStore) ClaimTransfer(ctx context.Context, id int64, staleBefore time.Time, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return "", ErrClaimed
	}
	if t.Status != models.TransferStatusPending && t.Status != models.TransferStatusFailed {
		return "", ErrClaimed
	}
	if t.settlingAt != nil && !t.settlingAt.Before(staleBefore) {
		return "", ErrClaimed
	}
	now := s.now()
	t.settlingAt = &now
	if t.settleKey == "" {
		t.settleKey = key
	}
	s.transfers[id] = t
	return t.settleKey, nil
}

func (s *MemoryStore) CompleteTransfer(ctx context.Context, id int64, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok || t.Status == models.TransferStatusCompleted {
		return ErrClaimed
	}
	t.Status = models.TransferStatusCompleted
	t.PaymentID = paymentID
	t.settlingAt = nil
	t.settleKey = ""
	t.UpdatedAt = s.now()
	s.transfers[id] = t
	return nil
}

func (s *MemoryStore) ReleaseTransfer(ctx context.Context, id int64, status string, keepKey bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok || t.Status == models.TransferStatusCompleted {
		return ErrClaimed
	}
	t.Status = status
	t.settlingAt = nil
	if !keepKey {
		t.settleKey = ""
	}
	t.UpdatedAt = s.now()
	s.transfers[id] = t
	return nil
}

// Orders

func (s *MemoryStore) CreateOrder(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every reference before writing anything, which is what the
	// Postgres transaction gives us on rollback.
	if _, ok := s.users[o.UserID]; !ok {
		return ErrInvalidReference
	}
	for _, item := range o.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return ErrInvalidReference
		}
	}

	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	o.ID = s.id("orders")
	o.CreatedAt = s.now()
	o.UpdatedAt = o.CreatedAt
	for i := range o.Items {
		o.Items[i].ID = s.id("order_items")
		o.Items[i].OrderID = o.ID
	}

	stored := *o
	stored.Items = append([]models.OrderItem(nil), o.Items...)
	s.orders[o.ID] = memOrder{Order: stored}
	return nil
}

func (o memOrder) copy() models.Order {
	out := o.Order
	out.Items = append([]models.OrderItem(nil), o.Items...)
	return out
}

func (s *MemoryStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := o.copy()
	return &out, nil
}

func (s *MemoryStore) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := []models.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			orders = append(orders, o.copy())
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

func (s *MemoryStore) ClaimOrder(ctx context.Context, id int64, staleBefore time.Time, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return "", ErrClaimed
	}
	if o.settlingAt != nil && !o.settlingAt.Before(staleBefore) {
		return "", ErrClaimed
	}
	now := s.now()
	o.settlingAt = &now
	if o.settleKey == "" {
		o.settleKey = key
	}
	s.orders[id] = o
	return o.settleKey, nil
}

func (s *MemoryStore) CompleteOrder(ctx context.Context, id int64, paymentID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return ErrClaimed
	}
	o.Status = status
	o.PaymentID = paymentID
	o.settlingAt = nil
	o.settleKey = ""
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return nil
}

func (s *MemoryStore) ReleaseOrder(ctx context.Context, id int64, keepKey bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return ErrClaimed
	}
	o.settlingAt = nil
	if !keepKey {
		o.settleKey = ""
	}
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return nil
}

// Catalog

func (s *MemoryStore) categorySlugTaken(slug string, exceptID int64) bool {
	for _, c := range s.categories {
		if c.Slug == slug && c.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateCategory(ctx context.Context, c *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.categorySlugTaken(c.Slug, 0) {
		return ErrDuplicate
	}
	c.ID = s.id("categories")
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.categories[c.ID] = *c
	return nil
}

func (s *MemoryStore) UpdateCategory(ctx context.Context, c *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.categories[c.ID]
	if !ok {
		return ErrNotFound
	}
	if s.categorySlugTaken(c.Slug, c.ID) {
		return ErrDuplicate
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now()
	s.categories[c.ID] = *c
	return nil
}

func (s *MemoryStore) DeleteCategory(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return false, nil
	}
	delete(s.categories, id)
	for pid, p := range s.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			p.CategoryID = nil
			s.products[pid] = p
		}
	}
	return true, nil
}

func (s *MemoryStore) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := []models.Category{}
	for _, c := range s.categories {
		if activeOnly && !c.Active {
			continue
		}
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories, nil
}

func (s *MemoryStore) checkProduct(p *models.Product) error {
	for _, existing := range s.products {
		if existing.Slug == p.Slug && existing.ID != p.ID {
			return ErrDuplicate
		}
	}
	if p.CategoryID != nil {
		if _, ok := s.categories[*p.CategoryID]; !ok {
			return ErrInvalidReference
		}
	}
	return nil
}

func (s *MemoryStore) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = 0
	if err := s.checkProduct(p); err != nil {
		return err
	}
	p.ID = s.id("products")
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = *p
	return nil
}

func (s *MemoryStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[p.ID]
	if !ok {
		return ErrNotFound
	}
	if err := s.checkProduct(p); err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	s.products[p.ID] = *p
	return nil
}

func (s *MemoryStore) DeleteProduct(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return false, nil
	}
	for _, o := range s.orders {
		for _, item := range o.Items {
			if item.ProductID == id {
				return false, ErrInvalidReference
			}
		}
	}
	delete(s.products, id)
	return true, nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := []models.Product{}
	for _, p := range s.products {
		if f.ActiveOnly && !p.Active {
			continue
		}
		if f.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *f.CategoryID) {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *MemoryStore) serviceSlugTaken(slug string, exceptID int64) bool {
	for _, svc := range s.services {
		if svc.Slug == slug && svc.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateService(ctx context.Context, svc *models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serviceSlugTaken(svc.Slug, 0) {
		return ErrDuplicate
	}
	svc.ID = s.id("services")
	svc.CreatedAt = s.now()
	svc.UpdatedAt = svc.CreatedAt
	s.services[svc.ID] = *svc
	return nil
}

func (s *MemoryStore) UpdateService(ctx context.Context, svc *models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.services[svc.ID]
	if !ok {
		return ErrNotFound
	}
	if s.serviceSlugTaken(svc.Slug, svc.ID) {
		return ErrDuplicate
	}
	svc.CreatedAt = existing.CreatedAt
	svc.UpdatedAt = s.now()
	s.services[svc.ID] = *svc
	return nil
}

func (s *MemoryStore) DeleteService(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[id]; !ok {
		return false, nil
	}
	delete(s.services, id)
	return true, nil
}

func (s *MemoryStore) GetService(ctx context.Context, id int64) (*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &svc, nil
}

func (s *MemoryStore) ListServices(ctx context.Context, activeOnly bool) ([]models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := []models.Service{}
	for _, svc := range s.services {
		if activeOnly && !svc.Active {
			continue
		}
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool {
		if services[i].SortOrder != services[j].SortOrder {
			return services[i].SortOrder < services[j].SortOrder
		}
		return services[i].ID < services[j].ID
	})
	return services, nil
}

// Exchange rates

func (s *MemoryStore) CreateRate(ctx context.Context, r *models.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.id("exchange_rates")
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	s.rates[r.ID] = *r
	return nil
}

func (s *MemoryStore) UpdateRate(ctx context.Context, r *models.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rates[r.ID]
	if !ok {
		return ErrNotFound
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = s.now()
	s.rates[r.ID] = *r
	return nil
}

func (s *MemoryStore) DeleteRate(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rates[id]; !ok {
		return false, nil
	}
	delete(s.rates, id)
	return true, nil
}

func (s *MemoryStore) GetRate(ctx context.Context, id int64) (*models.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) CurrentRate(ctx context.Context, from, to string) (*models.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var current *models.ExchangeRate
	for _, r := range s.rates {
		if r.FromCurrency != from || r.ToCurrency != to {
			continue
		}
		if current == nil || r.UpdatedAt.After(current.UpdatedAt) ||
			(r.UpdatedAt.Equal(current.UpdatedAt) && r.ID > current.ID) {
			r := r
			current = &r
		}
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return current, nil
}

func (s *MemoryStore) ListRates(ctx context.Context) ([]models.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rates := []models.ExchangeRate{}
	for _, r := range s.rates {
		rates = append(rates, r)
	}
	sort.Slice(rates, func(i, j int) bool {
		a, b := rates[i], rates[j]
		if a.FromCurrency != b.FromCurrency {
			return a.FromCurrency < b.FromCurrency
		}
		if a.ToCurrency != b.ToCurrency {
			return a.ToCurrency < b.ToCurrency
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	return rates, nil
}
