package cinetpay

import "github.com/impact-gateway/internal/models"

// Provider statuses returned by /v1/payment/check
const (
	StatusAccepted = "ACCEPTED"
	StatusRefused  = "REFUSED"
)

// MapStatus converts a verified provider status to the local tri-state.
// Anything that is neither accepted nor refused is still in flight.
func MapStatus(providerStatus string) models.PaymentStatus {
	switch providerStatus {
	case StatusAccepted:
		return models.StatusCompleted
	case StatusRefused:
		return models.StatusFailed
	default:
		return models.StatusPending
	}
}
