package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payment represents one attempted payment
type Payment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	Amount        int64           `db:"amount" json:"amount"`
	Currency      string          `db:"currency" json:"currency"`
	CustomerName  string          `db:"customer_name" json:"customer_name"`
	CustomerPhone string          `db:"customer_phone" json:"customer_phone"`
	CustomerEmail *string         `db:"customer_email" json:"customer_email,omitempty"`
	Description   *string         `db:"description" json:"description,omitempty"`
	Status        PaymentStatus   `db:"status" json:"status"`
	PaymentMethod *string         `db:"payment_method" json:"payment_method,omitempty"`
	ProviderData  json.RawMessage `db:"provider_data" json:"provider_data,omitempty"` // JSONB
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentSnapshot is the public view returned to polling clients
type PaymentSnapshot struct {
	Status        PaymentStatus `json:"status"`
	PaymentMethod *string       `json:"payment_method"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
}

// PaymentStatus represents valid payment states
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
)

// CurrencyXOF is the only currency the shop charges in
const CurrencyXOF = "XOF"

// IsTerminal reports whether no further transition is expected
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsValidTransition checks if a status transition is allowed.
// Rewriting a terminal status with itself is allowed so duplicate webhooks stay idempotent.
func IsValidTransition(from, to PaymentStatus) bool {
	validTransitions := map[PaymentStatus][]PaymentStatus{
		StatusPending:   {StatusPending, StatusCompleted, StatusFailed},
		StatusCompleted: {StatusCompleted},
		StatusFailed:    {StatusFailed},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return false
	}

	for _, validTo := range allowed {
		if validTo == to {
			return true
		}
	}

	return false
}
