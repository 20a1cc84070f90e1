package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/impact-gateway/internal/orders"
)

// Checkout handles POST /shop/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req orders.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	req.Origin = r.Header.Get("Origin")

	resp, err := h.orders.Checkout(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}
