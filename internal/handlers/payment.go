package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/payment"
)

const (
	ActionNotify = "notify"
	ActionStatus = "status"
)

// InitializePaymentRequest represents the POST /payment body
type InitializePaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	CustomerEmail string          `json:"customer_email"`
	Description   string          `json:"description"`
}

// InitializePayment handles POST /payment
func (h *Handler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	var req InitializePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	resp, err := h.payments.Initialize(r.Context(), payment.InitializeRequest{
		Amount:        req.Amount,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Description:   req.Description,
		Origin:        r.Header.Get("Origin"),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// PaymentNotify handles POST /payment?action=notify from CinetPay.
// The body is never trusted beyond the transaction id; the status is
// re-read from the provider.
func (h *Handler) PaymentNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Warn("failed to read notification body", zap.Error(err))
		respondError(w, http.StatusBadRequest, "failed to read request")
		return
	}

	transactionID := notificationTransactionID(r.Header.Get("Content-Type"), body)
	h.log.Info("payment notification received",
		zap.String("transaction_id", transactionID),
		zap.String("remote_ip", r.RemoteAddr),
	)

	if err := h.payments.HandleNotification(r.Context(), transactionID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PaymentStatus handles GET /payment?action=status&transaction_id=...
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("action") != ActionStatus {
		w.Header().Set("Allow", http.MethodPost)
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap, err := h.payments.Status(r.Context(), r.URL.Query().Get("transaction_id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"data": snap})
}

// notificationTransactionID reads cpm_trans_id (or transaction_id) from a
// form-encoded or JSON notification.
func notificationTransactionID(contentType string, body []byte) string {
	keys := []string{"cpm_trans_id", "transaction_id"}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/x-www-form-urlencoded" {
		var payload map[string]interface{}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&payload); err == nil {
			for _, k := range keys {
				switch v := payload[k].(type) {
				case string:
					if s := strings.TrimSpace(v); s != "" {
						return s
					}
				case json.Number:
					return v.String()
				}
			}
			return ""
		}
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return ""
	}
	for _, k := range keys {
		if s := strings.TrimSpace(form.Get(k)); s != "" {
			return s
		}
	}
	return ""
}
