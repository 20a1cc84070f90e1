package cinetpay

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// CodeCreated is the envelope code of a successfully created payment
	CodeCreated = "201"

	// ChannelsAll lets the customer pick any mobile-money operator or card
	ChannelsAll = "ALL"
)

// ErrTimeout is returned when CinetPay did not answer within the client timeout
var ErrTimeout = errors.New("cinetpay: request timed out")

// APIError is a non-success envelope returned by CinetPay
type APIError struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cinetpay error [%s]: %s", e.Code, e.Message)
}

// Client talks to the CinetPay payment API
type Client struct {
	apiKey  string
	siteID  string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewClient creates a CinetPay client with SSL verification enforced
func NewClient(apiKey, siteID, baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		siteID:  siteID,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
		log: log,
	}
}

// CreatePaymentRequest carries the fields of a new payment
type CreatePaymentRequest struct {
	TransactionID string
	Amount        int64
	Currency      string
	Description   string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	NotifyURL     string
	ReturnURL     string
	CancelURL     string
}

// CreatePaymentResult is what the storefront needs to redirect the customer
type CreatePaymentResult struct {
	PaymentURL   string
	PaymentToken string
}

// CheckResult is the provider's authoritative view of a transaction
type CheckResult struct {
	Status        string
	PaymentMethod string
	Raw           json.RawMessage
}

type createBody struct {
	APIKey              string `json:"apikey"`
	SiteID              string `json:"site_id"`
	TransactionID       string `json:"transaction_id"`
	Amount              int64  `json:"amount"`
	Currency            string `json:"currency"`
	Description         string `json:"description"`
	CustomerName        string `json:"customer_name"`
	CustomerPhoneNumber string `json:"customer_phone_number"`
	CustomerEmail       string `json:"customer_email"`
	Channels            string `json:"channels"`
	NotifyURL           string `json:"notify_url"`
	ReturnURL           string `json:"return_url"`
	CancelURL           string `json:"cancel_url"`
}

type checkBody struct {
	APIKey        string `json:"apikey"`
	SiteID        string `json:"site_id"`
	TransactionID string `json:"transaction_id"`
}

type envelope struct {
	Code        flexString      `json:"code"`
	Message     string          `json:"message"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data"`
}

// CreatePayment calls POST /v1/payment
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	body := createBody{
		APIKey:              c.apiKey,
		SiteID:              c.siteID,
		TransactionID:       req.TransactionID,
		Amount:              req.Amount,
		Currency:            req.Currency,
		Description:         req.Description,
		CustomerName:        req.CustomerName,
		CustomerPhoneNumber: req.CustomerPhone,
		CustomerEmail:       req.CustomerEmail,
		Channels:            ChannelsAll,
		NotifyURL:           req.NotifyURL,
		ReturnURL:           req.ReturnURL,
		CancelURL:           req.CancelURL,
	}

	env, status, err := c.post(ctx, "/v1/payment", req.TransactionID, body)
	if err != nil {
		return nil, err
	}

	if string(env.Code) != CodeCreated {
		return nil, &APIError{Code: string(env.Code), Message: env.Message, HTTPStatus: status}
	}

	var data struct {
		PaymentURL   string `json:"payment_url"`
		PaymentToken string `json:"payment_token"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode payment data: %w", err)
		}
	}
	if data.PaymentURL == "" {
		return nil, &APIError{Code: string(env.Code), Message: "missing payment_url", HTTPStatus: status}
	}

	return &CreatePaymentResult{PaymentURL: data.PaymentURL, PaymentToken: data.PaymentToken}, nil
}

// CheckPayment calls POST /v1/payment/check
func (c *Client) CheckPayment(ctx context.Context, transactionID string) (*CheckResult, error) {
	body := checkBody{
		APIKey:        c.apiKey,
		SiteID:        c.siteID,
		TransactionID: transactionID,
	}

	env, status, err := c.post(ctx, "/v1/payment/check", transactionID, body)
	if err != nil {
		return nil, err
	}

	var data struct {
		Status        string `json:"status"`
		PaymentMethod string `json:"payment_method"`
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode check data: %w", err)
		}
	}
	if data.Status == "" {
		return nil, &APIError{Code: string(env.Code), Message: env.Message, HTTPStatus: status}
	}

	return &CheckResult{
		Status:        data.Status,
		PaymentMethod: data.PaymentMethod,
		Raw:           env.Data,
	}, nil
}

// post sends a JSON body and decodes the CinetPay envelope.
// CinetPay answers errors with an envelope too, so the body is decoded whatever the HTTP status.
func (c *Client) post(ctx context.Context, path, transactionID string, payload any) (*envelope, int, error) {
	log := c.log.With(zap.String("transaction_id", transactionID), zap.String("path", path))

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			log.Warn("cinetpay request timed out", zap.Duration("elapsed", time.Since(start)))
			return nil, 0, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		log.Error("cinetpay request failed", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to call cinetpay: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		log.Error("cinetpay returned undecodable body",
			zap.Int("http_status", resp.StatusCode),
			zap.ByteString("response", respBody),
		)
		return nil, resp.StatusCode, fmt.Errorf("failed to unmarshal response (status %d): %w", resp.StatusCode, err)
	}

	log.Info("cinetpay response",
		zap.Int("http_status", resp.StatusCode),
		zap.String("code", string(env.Code)),
		zap.String("message", env.Message),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &env, resp.StatusCode, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// flexString accepts both "201" and 201
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
