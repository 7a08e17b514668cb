package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	LocaleFR      = "fr"
	LocaleEN      = "en"
	DefaultLocale = LocaleFR
)

// Localized holds the French and English variants of a catalog text.
type Localized struct {
	FR string `json:"fr"`
	EN string `json:"en"`
}

// Get returns the text for locale, falling back to the other language when
// the requested one is blank. Unknown locales resolve as DefaultLocale.
func (l Localized) Get(locale string) string {
	primary, fallback := l.FR, l.EN
	if NormalizeLocale(locale) == LocaleEN {
		primary, fallback = l.EN, l.FR
	}
	if strings.TrimSpace(primary) != "" {
		return primary
	}
	return fallback
}

// NormalizeLocale maps a ?lang= value onto a supported locale.
func NormalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	if locale == LocaleEN {
		return LocaleEN
	}
	return DefaultLocale
}

type Category struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Name        Localized `json:"name"`
	Description Localized `json:"description"`
	ImageURL    string    `json:"image_url,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Product struct {
	ID          int64           `json:"id"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Slug        string          `json:"slug"`
	Name        Localized       `json:"name"`
	Description Localized       `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	ImageURL    string          `json:"image_url,omitempty"`
	InStock     bool            `json:"in_stock"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Service struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Name        Localized `json:"name"`
	Description Localized `json:"description"`
	ImageURL    string    `json:"image_url,omitempty"`
	Active      bool      `json:"active"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Catalog views returned by the public read endpoints.

type CategoryView struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
}

type ProductView struct {
	ID          int64           `json:"id"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	ImageURL    string          `json:"image_url,omitempty"`
	InStock     bool            `json:"in_stock"`
}

type ServiceView struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
}

func (c *Category) View(locale string) CategoryView {
	return CategoryView{
		ID:          c.ID,
		Slug:        c.Slug,
		Name:        c.Name.Get(locale),
		Description: c.Description.Get(locale),
		ImageURL:    c.ImageURL,
	}
}

func (p *Product) View(locale string) ProductView {
	return ProductView{
		ID:          p.ID,
		CategoryID:  p.CategoryID,
		Slug:        p.Slug,
		Name:        p.Name.Get(locale),
		Description: p.Description.Get(locale),
		Price:       p.Price,
		Currency:    p.Currency,
		ImageURL:    p.ImageURL,
		InStock:     p.InStock,
	}
}

func (s *Service) View(locale string) ServiceView {
	return ServiceView{
		ID:          s.ID,
		Slug:        s.Slug,
		Name:        s.Name.Get(locale),
		Description: s.Description.Get(locale),
		ImageURL:    s.ImageURL,
	}
}
