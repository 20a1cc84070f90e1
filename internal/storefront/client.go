// Package storefront is the customer-side client of the payment API: it starts
// payments and follows them until the provider settles.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/impact-gateway/internal/models"
)

// APIError is an error body returned by the payment API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment api error (%d): %s", e.StatusCode, e.Message)
}

// Client calls the payment API
type Client struct {
	baseURL string
	origin  string
	client  *http.Client
}

// NewClient creates a client for baseURL. origin is sent as the Origin header
// so the provider redirects the customer back to the right storefront.
func NewClient(baseURL, origin string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		origin:  origin,
		client:  &http.Client{Timeout: timeout},
	}
}

// InitializeRequest is the payment form of the storefront
type InitializeRequest struct {
	Amount        int64  `json:"amount"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email,omitempty"`
	Description   string `json:"description,omitempty"`
}

// InitializeResponse carries the hosted page and the id to poll
type InitializeResponse struct {
	PaymentURL    string `json:"payment_url"`
	TransactionID string `json:"transaction_id"`
}

// Initialize starts a payment
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp InitializeResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the current snapshot, or nil when the transaction is unknown
func (c *Client) Status(ctx context.Context, transactionID string) (*models.PaymentSnapshot, error) {
	q := url.Values{}
	q.Set("action", "status")
	q.Set("transaction_id", transactionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payment?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp struct {
		Data *models.PaymentSnapshot `json:"data"`
	}
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call payment api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
