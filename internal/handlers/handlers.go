package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/models"
	"github.com/impact-gateway/internal/orders"
	"github.com/impact-gateway/internal/payment"
	"github.com/impact-gateway/internal/repository"
)

// PaymentService is the payment side used by the HTTP layer
type PaymentService interface {
	Initialize(ctx context.Context, req payment.InitializeRequest) (*payment.InitializeResponse, error)
	HandleNotification(ctx context.Context, transactionID string) error
	Status(ctx context.Context, transactionID string) (*models.PaymentSnapshot, error)
}

// OrderService is the shop side used by the HTTP layer
type OrderService interface {
	Checkout(ctx context.Context, req orders.CheckoutRequest) (*orders.CheckoutResponse, error)
	List(ctx context.Context, f repository.ListFilter) ([]models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
}

// PaymentLister backs the admin payment list
type PaymentLister interface {
	List(ctx context.Context, f repository.ListFilter) ([]models.Payment, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	payments     PaymentService
	orders       OrderService
	paymentsList PaymentLister
	db           HealthChecker
	log          *zap.Logger
}

// NewHandler creates a new handler instance
func NewHandler(payments PaymentService, orders OrderService, paymentsList PaymentLister, db HealthChecker, log *zap.Logger) *Handler {
	return &Handler{
		payments:     payments,
		orders:       orders,
		paymentsList: paymentsList,
		db:           db,
		log:          log,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := map[string]string{
		"status": "ok",
	}

	if err := h.db.Health(ctx); err != nil {
		h.log.Warn("database health check failed", zap.Error(err))
		health["database"] = "down"
		health["status"] = "degraded"
	} else {
		health["database"] = "up"
	}

	status := http.StatusOK
	if health["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, health)
}

// respondServiceError maps the service error taxonomy to HTTP statuses
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr  *payment.ValidationError
		badRequestErr  *payment.BadRequestError
		providerErr    *payment.ProviderError
		persistenceErr *payment.PersistenceError
	)

	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &badRequestErr):
		respondError(w, http.StatusBadRequest, badRequestErr.Message)
	case errors.Is(err, orders.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &providerErr):
		h.log.Error("payment provider error", zap.String("path", r.URL.Path), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, payment.ErrProviderTimeout) {
			status = http.StatusGatewayTimeout
		}
		respondError(w, status, providerErr.Error())
	case errors.As(err, &persistenceErr):
		h.log.Error("persistence error", zap.String("path", r.URL.Path), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to "+persistenceErr.Op)
	default:
		h.log.Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
