package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/config"
	"github.com/impact-gateway/internal/handlers"
	customMiddleware "github.com/impact-gateway/internal/middleware"
)

// Server wraps the HTTP server
type Server struct {
	router  *chi.Mux
	handler *handlers.Handler
	config  *config.Config
	limiter *customMiddleware.IPRateLimiter
	http    *http.Server
	log     *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, h *handlers.Handler, log *zap.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		handler: h,
		config:  cfg,
		limiter: customMiddleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		log:     log,
	}

	s.setupRoutes()
	return s
}

// Router exposes the configured routes
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures all routes and middleware
func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RequestID)
	// Forwarding headers are client-controlled unless a proxy overwrites them
	if s.config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(customMiddleware.RequestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handler.HealthCheck)

	sizeLimit := customMiddleware.RequestSizeLimit(s.config.MaxRequestSize)

	// Webhook (IP filtered + size limited); initialize is rate limited per client
	notify := chi.Chain(
		customMiddleware.IPFilter(s.config.CinetPayIPs, s.log),
		sizeLimit,
	).HandlerFunc(s.handler.PaymentNotify)
	initialize := chi.Chain(
		s.limiter.Middleware,
		sizeLimit,
	).HandlerFunc(s.handler.InitializePayment)

	r.Post("/payment", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case handlers.ActionNotify:
			notify.ServeHTTP(w, r)
		case handlers.ActionStatus:
			s.handler.PaymentStatus(w, r)
		default:
			initialize.ServeHTTP(w, r)
		}
	})
	r.Get("/payment", s.handler.PaymentStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Use(sizeLimit)
		r.Post("/shop/checkout", s.handler.Checkout)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(customMiddleware.RequireAdmin(s.config.AdminJWTSecret, s.log))
		r.Get("/payments", s.handler.ListPayments)
		r.Get("/orders", s.handler.ListOrders)
		r.Get("/orders/{id}", s.handler.GetOrder)
		r.With(sizeLimit).Patch("/orders/{id}/status", s.handler.UpdateOrderStatus)
	})

	s.log.Debug("routes configured")
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(ctx context.Context) error {
	go s.limiter.Cleanup(ctx)

	s.http = &http.Server{
		Addr:              ":" + s.config.ServerPort,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       time.Minute,
	}

	s.log.Info("starting HTTP server", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
