package api

import (
	"errors"
	"net/http"
	"strings"

	"remit/internal/middleware"
	"remit/internal/models"
	"remit/internal/settlement"
	"remit/internal/store"
	"remit/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// activeAdmin rejects admin tokens whose account was removed or disabled after
// the token was issued.
func (s *Server) activeAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			s.writeError(w, http.StatusUnauthorized, settlement.KindAuthorization, "Authorization header required")
			return
		}
		a, err := s.store.GetAdminByID(r.Context(), claims.UserID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !a.Active) {
			s.logger.Warn("rejected token for inactive admin", zap.Int64("admin_id", claims.UserID))
			s.writeError(w, http.StatusUnauthorized, settlement.KindAuthorization, "Admin account is disabled")
			return
		}
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type categoryRequest struct {
	Slug        string           `json:"slug"`
	Name        models.Localized `json:"name"`
	Description models.Localized `json:"description"`
	ImageURL    string           `json:"image_url"`
	Active      *bool            `json:"active"`
}

type productRequest struct {
	CategoryID  *int64           `json:"category_id"`
	Slug        string           `json:"slug"`
	Name        models.Localized `json:"name"`
	Description models.Localized `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	Currency    string           `json:"currency"`
	ImageURL    string           `json:"image_url"`
	InStock     *bool            `json:"in_stock"`
	Active      *bool            `json:"active"`
}

type serviceRequest struct {
	Slug        string           `json:"slug"`
	Name        models.Localized `json:"name"`
	Description models.Localized `json:"description"`
	ImageURL    string           `json:"image_url"`
	Active      *bool            `json:"active"`
	SortOrder   int              `json:"sort_order"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// slugFor keeps an explicit slug, otherwise derives one from the French name
// (falling back to English).
func slugFor(slug string, name models.Localized) string {
	if s := utils.Slugify(slug); s != "" {
		return s
	}
	return utils.Slugify(name.Get(models.DefaultLocale))
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.writeError(w, http.StatusBadRequest, settlement.KindValidation, message)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := utils.GetIDFromPath(r)
	if err != nil {
		s.badRequest(w, "Invalid ID")
		return 0, false
	}
	return id, true
}

func (s *Server) respondDeleted(w http.ResponseWriter, r *http.Request, removed bool, err error, what string) {
	if errors.Is(err, store.ErrInvalidReference) {
		s.badRequest(w, what+" is still in use")
		return
	}
	if err != nil {
		s.respondStoreError(w, r, err, what)
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, settlement.KindNotFound, what+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Exchange rates

func (s *Server) rateFromRequest(w http.ResponseWriter, r *http.Request) (*models.ExchangeRate, bool) {
	var req models.ExchangeRateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return nil, false
	}
	from, okFrom := utils.NormalizeCurrency(req.FromCurrency)
	to, okTo := utils.NormalizeCurrency(req.ToCurrency)
	if !okFrom || !okTo {
		s.badRequest(w, "Currencies must be three-letter codes")
		return nil, false
	}
	if !req.Rate.IsPositive() {
		s.badRequest(w, "Rate must be greater than zero")
		return nil, false
	}
	return &models.ExchangeRate{FromCurrency: from, ToCurrency: to, Rate: req.Rate}, true
}

func (s *Server) adminListRates(w http.ResponseWriter, r *http.Request) {
	s.listExchangeRates(w, r)
}

func (s *Server) adminCreateRate(w http.ResponseWriter, r *http.Request) {
	rate, ok := s.rateFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.store.CreateRate(r.Context(), rate); err != nil {
		s.respondStoreError(w, r, err, "Exchange rate")
		return
	}

	s.logger.Info("exchange rate created",
		zap.Int64("rate_id", rate.ID),
		zap.String("pair", rate.FromCurrency+"/"+rate.ToCurrency),
		zap.String("rate", rate.Rate.String()))
	writeJSON(w, http.StatusCreated, rate)
}

func (s *Server) adminUpdateRate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	rate, ok := s.rateFromRequest(w, r)
	if !ok {
		return
	}
	rate.ID = id
	if err := s.store.UpdateRate(r.Context(), rate); err != nil {
		s.respondStoreError(w, r, err, "Exchange rate")
		return
	}

	s.logger.Info("exchange rate updated",
		zap.Int64("rate_id", rate.ID),
		zap.String("pair", rate.FromCurrency+"/"+rate.ToCurrency),
		zap.String("rate", rate.Rate.String()))
	writeJSON(w, http.StatusOK, rate)
}

func (s *Server) adminDeleteRate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	removed, err := s.store.DeleteRate(r.Context(), id)
	s.respondDeleted(w, r, removed, err, "Exchange rate")
}

// Services

func (s *Server) serviceFromRequest(w http.ResponseWriter, r *http.Request) (*models.Service, bool) {
	var req serviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return nil, false
	}
	if strings.TrimSpace(req.Name.FR) == "" && strings.TrimSpace(req.Name.EN) == "" {
		s.badRequest(w, "Name is required")
		return nil, false
	}
	return &models.Service{
		Slug:        slugFor(req.Slug, req.Name),
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    strings.TrimSpace(req.ImageURL),
		Active:      boolOr(req.Active, true),
		SortOrder:   req.SortOrder,
	}, true
}

func (s *Server) adminListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListServices(r.Context(), false)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (s *Server) adminCreateService(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.serviceFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.store.CreateService(r.Context(), svc); err != nil {
		s.respondStoreError(w, r, err, "Service")
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (s *Server) adminUpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	svc, ok := s.serviceFromRequest(w, r)
	if !ok {
		return
	}
	svc.ID = id
	if err := s.store.UpdateService(r.Context(), svc); err != nil {
		s.respondStoreError(w, r, err, "Service")
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) adminDeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	removed, err := s.store.DeleteService(r.Context(), id)
	s.respondDeleted(w, r, removed, err, "Service")
}

// Products

func (s *Server) productFromRequest(w http.ResponseWriter, r *http.Request) (*models.Product, bool) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return nil, false
	}
	if strings.TrimSpace(req.Name.FR) == "" && strings.TrimSpace(req.Name.EN) == "" {
		s.badRequest(w, "Name is required")
		return nil, false
	}
	if !req.Price.IsPositive() {
		s.badRequest(w, "Price must be greater than zero")
		return nil, false
	}
	currency, ok := utils.NormalizeCurrency(req.Currency)
	if !ok {
		s.badRequest(w, "Currency must be a three-letter code")
		return nil, false
	}
	if !req.Price.Equal(req.Price.Round(models.MinorExponent(currency))) {
		s.badRequest(w, "Price has more decimals than "+currency+" allows")
		return nil, false
	}
	return &models.Product{
		CategoryID:  req.CategoryID,
		Slug:        slugFor(req.Slug, req.Name),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Currency:    currency,
		ImageURL:    strings.TrimSpace(req.ImageURL),
		InStock:     boolOr(req.InStock, true),
		Active:      boolOr(req.Active, true),
	}, true
}

func (s *Server) adminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListProducts(r.Context(), store.ProductFilter{})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.productFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.store.CreateProduct(r.Context(), p); err != nil {
		s.respondStoreError(w, r, err, "Product")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) adminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	p, ok := s.productFromRequest(w, r)
	if !ok {
		return
	}
	p.ID = id
	if err := s.store.UpdateProduct(r.Context(), p); err != nil {
		s.respondStoreError(w, r, err, "Product")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) adminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	removed, err := s.store.DeleteProduct(r.Context(), id)
	s.respondDeleted(w, r, removed, err, "Product")
}

// Categories

func (s *Server) categoryFromRequest(w http.ResponseWriter, r *http.Request) (*models.Category, bool) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return nil, false
	}
	if strings.TrimSpace(req.Name.FR) == "" && strings.TrimSpace(req.Name.EN) == "" {
		s.badRequest(w, "Name is required")
		return nil, false
	}
	return &models.Category{
		Slug:        slugFor(req.Slug, req.Name),
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    strings.TrimSpace(req.ImageURL),
		Active:      boolOr(req.Active, true),
	}, true
}

func (s *Server) adminListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context(), false)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) adminCreateCategory(w http.ResponseWriter, r *http.Request) {
	c, ok := s.categoryFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.store.CreateCategory(r.Context(), c); err != nil {
		s.respondStoreError(w, r, err, "Category")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) adminUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	c, ok := s.categoryFromRequest(w, r)
	if !ok {
		return
	}
	c.ID = id
	if err := s.store.UpdateCategory(r.Context(), c); err != nil {
		s.respondStoreError(w, r, err, "Category")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) adminDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	removed, err := s.store.DeleteCategory(r.Context(), id)
	s.respondDeleted(w, r, removed, err, "Category")
}
