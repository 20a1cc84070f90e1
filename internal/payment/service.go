package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/cinetpay"
	"github.com/impact-gateway/internal/models"
	"github.com/impact-gateway/internal/repository"
)

const (
	// MinAmount and MaxAmount bound a single payment, in XOF
	MinAmount = 100
	MaxAmount = 1_500_000

	// DefaultDescription is sent to the provider when the caller gave none
	DefaultDescription = "Paiement Impact Digital"
)

var (
	minAmount = decimal.NewFromInt(MinAmount)
	maxAmount = decimal.NewFromInt(MaxAmount)
)

// Store is the durable payment store
type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	GetSnapshot(ctx context.Context, transactionID string) (*models.PaymentSnapshot, error)
	UpdateVerification(ctx context.Context, transactionID string, status models.PaymentStatus, paymentMethod *string, providerData []byte) (bool, error)
}

// Provider is the external payment API
type Provider interface {
	CreatePayment(ctx context.Context, req cinetpay.CreatePaymentRequest) (*cinetpay.CreatePaymentResult, error)
	CheckPayment(ctx context.Context, transactionID string) (*cinetpay.CheckResult, error)
}

// OrderConfirmer confirms the shop order paid by a completed payment
type OrderConfirmer interface {
	ConfirmPaid(ctx context.Context, transactionID string) (bool, error)
}

// RetryScheduler queues a later re-verification of a transaction
type RetryScheduler interface {
	ScheduleVerification(ctx context.Context, transactionID string) error
}

// Config holds the URLs handed to the provider
type Config struct {
	NotifyURL string
	SiteURL   string
}

// Service handles payment operations
type Service struct {
	store     Store
	provider  Provider
	orders    OrderConfirmer
	retries   RetryScheduler
	cfg       Config
	validator *validator.Validate
	log       *zap.Logger
	now       func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithOrderConfirmer confirms linked shop orders once a payment completes
func WithOrderConfirmer(c OrderConfirmer) Option {
	return func(s *Service) { s.orders = c }
}

// WithRetryScheduler re-verifies in the background when a webhook could not be processed
func WithRetryScheduler(r RetryScheduler) Option {
	return func(s *Service) { s.retries = r }
}

// NewService creates a new payment service
func NewService(store Store, provider Provider, cfg Config, log *zap.Logger, opts ...Option) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	s := &Service{
		store:     store,
		provider:  provider,
		cfg:       cfg,
		validator: v,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitializeRequest represents the payment initialization request
type InitializeRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	CustomerName  string          `json:"customer_name" validate:"required,max=100"`
	CustomerPhone string          `json:"customer_phone" validate:"required,max=20"`
	CustomerEmail string          `json:"customer_email" validate:"omitempty,max=254"`
	Description   string          `json:"description" validate:"max=500"`

	// Origin is the storefront the customer is redirected back to
	Origin string `json:"-"`

	// TransactionID is set when the caller reserved one with NewTransactionID
	TransactionID string `json:"-"`
}

// InitializeResponse represents the payment initialization response
type InitializeResponse struct {
	PaymentURL    string `json:"payment_url"`
	TransactionID string `json:"transaction_id"`
}

// VerifyResult describes what a verification did
type VerifyResult struct {
	TransactionID  string
	Found          bool
	ProviderStatus string
	Status         models.PaymentStatus
	PaymentMethod  string
	Updated        bool
}

// Initialize validates the request, stores a pending payment and asks the
// provider for a payment page.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.Description = strings.TrimSpace(req.Description)

	amount, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	transactionID := req.TransactionID
	if transactionID == "" {
		transactionID = s.NewTransactionID()
	}
	log := s.log.With(zap.String("transaction_id", transactionID), zap.Int64("amount", amount))

	record := &models.Payment{
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      models.CurrencyXOF,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: optional(req.CustomerEmail),
		Description:   optional(req.Description),
		Status:        models.StatusPending,
	}
	if err := s.store.Create(ctx, record); err != nil {
		log.Error("failed to save payment", zap.Error(err))
		return nil, &PersistenceError{Op: "save payment", Err: err}
	}

	description := req.Description
	if description == "" {
		description = DefaultDescription
	}
	origin := s.origin(req.Origin)

	result, err := s.provider.CreatePayment(ctx, cinetpay.CreatePaymentRequest{
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      models.CurrencyXOF,
		Description:   description,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		NotifyURL:     s.cfg.NotifyURL,
		ReturnURL:     ReturnURL(origin, transactionID),
		CancelURL:     CancelURL(origin),
	})
	if err != nil {
		// The pending record is kept; it never leaves pending without a webhook.
		log.Error("provider refused payment initialization", zap.Error(err))
		return nil, providerError(err)
	}

	log.Info("payment initialized", zap.String("payment_token", result.PaymentToken))

	return &InitializeResponse{
		PaymentURL:    result.PaymentURL,
		TransactionID: transactionID,
	}, nil
}

// Verify asks the provider for the authoritative status of a transaction and
// records it. Unknown transactions are a no-op.
func (s *Service) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	if transactionID == "" {
		return nil, &BadRequestError{Message: "missing transaction id"}
	}
	log := s.log.With(zap.String("transaction_id", transactionID))
	res := &VerifyResult{TransactionID: transactionID}

	current, err := s.store.GetByTransactionID(ctx, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("verification for unknown transaction ignored")
		return res, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load payment", Err: err}
	}
	res.Found = true

	check, err := s.provider.CheckPayment(ctx, transactionID)
	if err != nil {
		return nil, providerError(err)
	}

	status := cinetpay.MapStatus(check.Status)
	res.ProviderStatus = check.Status
	res.PaymentMethod = check.PaymentMethod
	res.Status = status

	if !models.IsValidTransition(current.Status, status) {
		log.Info("verified status does not change a terminal payment",
			zap.String("current", string(current.Status)),
			zap.String("verified", string(status)),
		)
		res.Status = current.Status
		return res, nil
	}

	updated, err := s.store.UpdateVerification(ctx, transactionID, status, optional(check.PaymentMethod), check.Raw)
	if err != nil {
		return nil, &PersistenceError{Op: "update payment", Err: err}
	}
	res.Updated = updated

	log.Info("payment verified",
		zap.String("provider_status", check.Status),
		zap.String("status", string(status)),
		zap.String("payment_method", check.PaymentMethod),
		zap.Bool("updated", updated),
	)

	if status == models.StatusCompleted && updated && s.orders != nil {
		confirmed, err := s.orders.ConfirmPaid(ctx, transactionID)
		if err != nil {
			log.Error("failed to confirm order for payment", zap.Error(err))
		} else if confirmed {
			log.Info("order confirmed by payment")
		}
	}

	return res, nil
}

// HandleNotification processes a provider webhook. Only a missing id is
// reported; every other failure is logged and retried in the background so the
// provider always gets its acknowledgement.
func (s *Service) HandleNotification(ctx context.Context, transactionID string) error {
	if transactionID == "" {
		return &BadRequestError{Message: "missing transaction id"}
	}

	if _, err := s.Verify(ctx, transactionID); err != nil {
		log := s.log.With(zap.String("transaction_id", transactionID))
		log.Error("webhook verification failed", zap.Error(err))

		if s.retries != nil {
			// ctx may already be cancelled by a slow provider call
			scheduleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.retries.ScheduleVerification(scheduleCtx, transactionID); err != nil {
				log.Error("failed to schedule verification retry", zap.Error(err))
			}
		}
	}
	return nil
}

// Status returns the polling snapshot, or nil for an unknown transaction
func (s *Service) Status(ctx context.Context, transactionID string) (*models.PaymentSnapshot, error) {
	if transactionID == "" {
		return nil, &BadRequestError{Message: "missing transaction_id"}
	}

	snap, err := s.store.GetSnapshot(ctx, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load payment status", Err: err}
	}
	return snap, nil
}

// validate returns the rounded integer amount of a valid request
func (s *Service) validate(req InitializeRequest) (int64, error) {
	if req.Amount.IsZero() || req.CustomerName == "" || req.CustomerPhone == "" {
		return 0, &ValidationError{Message: "missing required fields: amount, customer_name, customer_phone"}
	}

	if err := s.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return 0, &ValidationError{Message: fmt.Sprintf("invalid %s: failed %s", verrs[0].Field(), verrs[0].Tag())}
		}
		return 0, &ValidationError{Message: err.Error()}
	}

	if req.Amount.LessThan(minAmount) || req.Amount.GreaterThan(maxAmount) {
		return 0, &ValidationError{Message: fmt.Sprintf("amount must be between %d and %d %s", MinAmount, MaxAmount, models.CurrencyXOF)}
	}

	return req.Amount.Round(0).IntPart(), nil
}

// NewTransactionID returns a fresh PAY-<unix ms>-<6 hex> id
func (s *Service) NewTransactionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("PAY-%d-%s", s.now().UnixMilli(), suffix)
}

// origin keeps the caller's Origin only when it is an absolute http(s) URL
func (s *Service) origin(o string) string {
	u, err := url.Parse(o)
	if o == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return s.cfg.SiteURL
	}
	return u.Scheme + "://" + u.Host
}

// ReturnURL is where the provider sends the browser after payment.
// It carries the transaction id so the storefront can resume polling.
func ReturnURL(origin, transactionID string) string {
	q := url.Values{}
	q.Set("status", "done")
	q.Set("transaction_id", transactionID)
	return origin + "/paiement?" + encodeOrdered(q, "status", "transaction_id")
}

// CancelURL is where the provider sends the browser on cancel
func CancelURL(origin string) string {
	return origin + "/paiement?status=cancelled"
}

// encodeOrdered encodes keys in the given order rather than url.Values' sorted order
func encodeOrdered(q url.Values, keys ...string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(q.Get(k)))
	}
	return strings.Join(parts, "&")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
