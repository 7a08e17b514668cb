package api

import (
	"errors"
	"net/http"

	"remit/internal/models"
	"remit/internal/settlement"
	"remit/internal/store"
	"remit/internal/utils"
)

func (s *Server) getExchangeRate(w http.ResponseWriter, r *http.Request) {
	from, okFrom := utils.NormalizeCurrency(r.URL.Query().Get("from"))
	to, okTo := utils.NormalizeCurrency(r.URL.Query().Get("to"))
	if !okFrom || !okTo {
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "from and to must be three-letter currency codes")
		return
	}

	rate, err := s.store.CurrentRate(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, settlement.KindNotFound, "Exchange rate not found")
			return
		}
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (s *Server) listExchangeRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.store.ListRates(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

func locale(r *http.Request) string {
	return models.NormalizeLocale(r.URL.Query().Get("lang"))
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	filter := store.ProductFilter{ActiveOnly: true}
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := utils.ParseID(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Invalid category ID")
			return
		}
		filter.CategoryID = &id
	}

	products, err := s.store.ListProducts(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	lang := locale(r)
	views := make([]models.ProductView, 0, len(products))
	for i := range products {
		views = append(views, products[i].View(lang))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := utils.GetIDFromPath(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Invalid product ID")
		return
	}

	p, err := s.store.GetProduct(r.Context(), id)
	if err == nil && !p.Active {
		err = store.ErrNotFound
	}
	if err != nil {
		s.respondStoreError(w, r, err, "Product")
		return
	}
	writeJSON(w, http.StatusOK, p.View(locale(r)))
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListServices(r.Context(), true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	lang := locale(r)
	views := make([]models.ServiceView, 0, len(services))
	for i := range services {
		views = append(views, services[i].View(lang))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context(), true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	lang := locale(r)
	views := make([]models.CategoryView, 0, len(categories))
	for i := range categories {
		views = append(views, categories[i].View(lang))
	}
	writeJSON(w, http.StatusOK, views)
}
