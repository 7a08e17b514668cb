// Package store is the persistence layer: typed CRUD over every entity plus
// the compare-and-set claims used by settlement.
package store

import (
	"context"
	"errors"
	"time"

	"remit/internal/models"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicate        = errors.New("record already exists")
	ErrInvalidReference = errors.New("referenced record does not exist")
	// ErrClaimed means the entity is settled, being settled, or not in a
	// settleable state.
	ErrClaimed = errors.New("settlement already claimed")
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, u *models.User) error
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
}

type AdminStore interface {
	CreateAdmin(ctx context.Context, a *models.Admin) error
	GetAdminByID(ctx context.Context, id int64) (*models.Admin, error)
	GetAdminByUsername(ctx context.Context, username string) (*models.Admin, error)
}

// TransferStore covers the transfer lifecycle. ClaimTransfer must be an atomic
// conditional update: exactly one caller wins for a given transfer until the
// claim is released or goes stale (older than staleBefore).
//
// The claim also pins the gateway idempotency key. If an earlier attempt left
// a key behind, ClaimTransfer returns that key instead of the proposed one so
// a retry can never produce a second charge. Complete clears the key, and so
// does Release unless keepKey is set.
type TransferStore interface {
	CreateTransfer(ctx context.Context, t *models.Transfer) error
	GetTransfer(ctx context.Context, id int64) (*models.Transfer, error)
	ListTransfersByUser(ctx context.Context, userID int64) ([]models.Transfer, error)
	ClaimTransfer(ctx context.Context, id int64, staleBefore time.Time, key string) (string, error)
	CompleteTransfer(ctx context.Context, id int64, paymentID string) error
	ReleaseTransfer(ctx context.Context, id int64, status string, keepKey bool) error
}

// OrderStore mirrors TransferStore. CreateOrder writes the order and all of its
// items in one transaction.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	ClaimOrder(ctx context.Context, id int64, staleBefore time.Time, key string) (string, error)
	CompleteOrder(ctx context.Context, id int64, paymentID, status string) error
	ReleaseOrder(ctx context.Context, id int64, keepKey bool) error
}

type ProductFilter struct {
	CategoryID *int64
	ActiveOnly bool
}

type CatalogStore interface {
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, id int64) (bool, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error)

	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) (bool, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error)

	CreateService(ctx context.Context, s *models.Service) error
	UpdateService(ctx context.Context, s *models.Service) error
	DeleteService(ctx context.Context, id int64) (bool, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListServices(ctx context.Context, activeOnly bool) ([]models.Service, error)
}

// RateStore is the exchange rate store. CurrentRate returns the row for the
// pair with the latest updated_at.
type RateStore interface {
	CreateRate(ctx context.Context, r *models.ExchangeRate) error
	UpdateRate(ctx context.Context, r *models.ExchangeRate) error
	DeleteRate(ctx context.Context, id int64) (bool, error)
	GetRate(ctx context.Context, id int64) (*models.ExchangeRate, error)
	CurrentRate(ctx context.Context, from, to string) (*models.ExchangeRate, error)
	ListRates(ctx context.Context) ([]models.ExchangeRate, error)
}

type Store interface {
	UserStore
	AdminStore
	TransferStore
	OrderStore
	CatalogStore
	RateStore
	Ping(ctx context.Context) error
	Close() error
}
