package payment

import (
	"errors"
	"fmt"

	"github.com/impact-gateway/internal/cinetpay"
)

// ErrProviderTimeout marks a provider call that exceeded its deadline
var ErrProviderTimeout = errors.New("payment provider timed out")

// ValidationError is malformed or out-of-range caller input.
// Nothing was persisted and the provider was not called.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// BadRequestError is a request missing a required identifier
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

// ProviderError is a non-success answer (or no answer) from the provider
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment provider error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("payment provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PersistenceError is a rejected read or write on the payment store
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// providerError normalizes anything the provider client returned
func providerError(err error) error {
	var apiErr *cinetpay.APIError
	switch {
	case errors.As(err, &apiErr):
		return &ProviderError{Code: apiErr.Code, Message: apiErr.Message, Err: err}
	case errors.Is(err, cinetpay.ErrTimeout):
		return &ProviderError{Message: "request timed out", Err: fmt.Errorf("%w: %v", ErrProviderTimeout, err)}
	default:
		return &ProviderError{Message: err.Error(), Err: err}
	}
}
