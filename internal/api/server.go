package api

import (
	"context"
	"net/http"
	"time"

	"remit/internal/assistant"
	"remit/internal/middleware"
	"remit/internal/settlement"
	"remit/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Status reports which optional integrations have credentials.
type Status struct {
	Gateway bool
	Mailer  bool
}

const (
	defaultWriteTimeout = 2 * time.Minute
	responseSlack       = 30 * time.Second
)

type Deps struct {
	Addr         string
	// ChargeBudget is the longest a single gateway charge may run. The write
	// timeout is kept above it so a slow payment still gets its response.
	ChargeBudget time.Duration
	Store        store.Store
	Settlement   *settlement.Service
	Assistant    *assistant.Assistant
	UserAuth     *middleware.Authenticator
	AdminAuth    *middleware.Authenticator
	Status       Status
	Logger       *zap.Logger
}

type Server struct {
	store      store.Store
	settlement *settlement.Service
	assistant  *assistant.Assistant
	userAuth   *middleware.Authenticator
	adminAuth  *middleware.Authenticator
	status     Status
	logger     *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
	now        func() time.Time
}

func NewServer(deps Deps) *Server {
	s := &Server{
		store:      deps.Store,
		settlement: deps.Settlement,
		assistant:  deps.Assistant,
		userAuth:   deps.UserAuth,
		adminAuth:  deps.AdminAuth,
		status:     deps.Status,
		logger:     deps.Logger,
		now:        time.Now,
	}
	s.router = s.RegisterRoutes()
	s.httpServer = &http.Server{
		Addr:              deps.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(deps.ChargeBudget),
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func writeTimeout(chargeBudget time.Duration) time.Duration {
	if d := chargeBudget + responseSlack; d > defaultWriteTimeout {
		return d
	}
	return defaultWriteTimeout
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
