package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/middleware"
	"github.com/impact-gateway/internal/models"
	"github.com/impact-gateway/internal/payment"
	"github.com/impact-gateway/internal/repository"
)

// ListPayments handles GET /admin/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	f, ok := listFilter(w, r)
	if !ok {
		return
	}
	if f.Status != "" && !models.PaymentStatus(f.Status).Valid() {
		respondError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	payments, err := h.paymentsList.List(r.Context(), f)
	if err != nil {
		h.respondServiceError(w, r, &payment.PersistenceError{Op: "list payments", Err: err})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"data": payments})
}

// ListOrders handles GET /admin/orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	f, ok := listFilter(w, r)
	if !ok {
		return
	}

	list, err := h.orders.List(r.Context(), f)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"data": list})
}

// GetOrder handles GET /admin/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"data": o})
}

// UpdateOrderStatusRequest represents the PATCH body
type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// UpdateOrderStatus handles PATCH /admin/orders/{id}/status
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req UpdateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), id, req.Status); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	var admin string
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		admin, _ = claims["sub"].(string)
	}
	h.log.Info("order status changed by admin",
		zap.String("order_id", id.String()),
		zap.String("status", string(req.Status)),
		zap.String("admin", admin),
	)

	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": req.Status})
}

func listFilter(w http.ResponseWriter, r *http.Request) (repository.ListFilter, bool) {
	q := r.URL.Query()
	f := repository.ListFilter{Status: q.Get("status")}

	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid "+name)
			return f, false
		}
		*dst = n
	}
	return f, true
}
