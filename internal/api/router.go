package api

import (
	"remit/internal/middleware"
	"remit/internal/models"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func (s *Server) RegisterRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recoverer(s.logger))

	r.Get("/api/health", s.health)

	r.Post("/api/auth/register", s.register)
	r.Post("/api/auth/login", s.login)

	r.Get("/api/exchange-rates", s.getExchangeRate)
	r.Get("/api/exchange-rates/all", s.listExchangeRates)
	r.Get("/api/products", s.listProducts)
	r.Get("/api/products/{id}", s.getProduct)
	r.Get("/api/services", s.listServices)
	r.Get("/api/categories", s.listCategories)

	r.Post("/api/chat", s.chat)
	r.Get("/api/chat/suggestions", s.chatSuggestions)

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.Middleware)

		r.Get("/api/auth/me", s.me)
		r.Put("/api/auth/me", s.updateMe)
		r.Put("/api/auth/password", s.changePassword)

		r.Get("/api/transfers", s.listTransfers)
		r.Post("/api/transfers", s.createTransfer)
		r.Get("/api/transfers/{id}", s.getTransfer)
		r.Post("/api/transfers/{id}/pay", s.payTransfer)

		r.Get("/api/orders", s.listOrders)
		r.Post("/api/orders", s.createOrder)
		r.Get("/api/orders/{id}", s.getOrder)
		r.Post("/api/orders/{id}/pay", s.payOrder)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", s.adminLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.adminAuth.Middleware)
			r.Use(middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin))
			r.Use(s.activeAdmin)

			r.Get("/exchange-rates", s.adminListRates)
			r.Post("/exchange-rates", s.adminCreateRate)
			r.Put("/exchange-rates/{id}", s.adminUpdateRate)
			r.Delete("/exchange-rates/{id}", s.adminDeleteRate)

			r.Get("/services", s.adminListServices)
			r.Post("/services", s.adminCreateService)
			r.Put("/services/{id}", s.adminUpdateService)
			r.Delete("/services/{id}", s.adminDeleteService)

			r.Get("/products", s.adminListProducts)
			r.Post("/products", s.adminCreateProduct)
			r.Put("/products/{id}", s.adminUpdateProduct)
			r.Delete("/products/{id}", s.adminDeleteProduct)

			r.Get("/categories", s.adminListCategories)
			r.Post("/categories", s.adminCreateCategory)
			r.Put("/categories/{id}", s.adminUpdateCategory)
			r.Delete("/categories/{id}", s.adminDeleteCategory)
		})
	})

	return r
}
