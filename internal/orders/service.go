// Package orders turns a shop cart into a priced order and a pending payment.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/cart"
	"github.com/impact-gateway/internal/models"
	"github.com/impact-gateway/internal/payment"
	"github.com/impact-gateway/internal/repository"
)

const productPhysical = "physical"

// ErrNotFound is returned for an unknown order id
var ErrNotFound = errors.New("order not found")

// Repository is the order store
type Repository interface {
	ProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error)
	CreateWithItems(ctx context.Context, o *models.Order) error
	ConfirmByTransaction(ctx context.Context, transactionID string) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
	List(ctx context.Context, f repository.ListFilter) ([]models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// PaymentInitializer starts the payment of an order
type PaymentInitializer interface {
	NewTransactionID() string
	Initialize(ctx context.Context, req payment.InitializeRequest) (*payment.InitializeResponse, error)
}

// Service handles shop orders
type Service struct {
	repo      Repository
	payments  PaymentInitializer
	validator *validator.Validate
	log       *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, payments PaymentInitializer, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		payments:  payments,
		validator: validator.New(),
		log:       log,
		now:       time.Now,
	}
}

// CheckoutItem is a product and quantity as submitted by the storefront
type CheckoutItem struct {
	ProductID string `json:"product_id" validate:"required,max=100"`
	Quantity  int    `json:"quantity" validate:"min=1,max=1000"`
}

// CheckoutRequest represents a shop checkout
type CheckoutRequest struct {
	CustomerName    string         `json:"customer_name" validate:"required,max=100"`
	CustomerPhone   string         `json:"customer_phone" validate:"required,max=20"`
	CustomerEmail   string         `json:"customer_email" validate:"omitempty,max=254"`
	ShippingAddress string         `json:"shipping_address" validate:"max=500"`
	Notes           string         `json:"notes" validate:"max=1000"`
	Items           []CheckoutItem `json:"items" validate:"required,min=1,max=50,dive"`

	Origin string `json:"-"`
}

// CheckoutResponse is what the storefront needs to redirect to payment
type CheckoutResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	TotalAmount   int64     `json:"total_amount"`
	PaymentURL    string    `json:"payment_url"`
	TransactionID string    `json:"transaction_id"`
}

// Checkout prices the cart from the catalog, stores the order and starts its payment.
// Prices submitted by the client are never trusted.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.ShippingAddress = strings.TrimSpace(req.ShippingAddress)
	req.Notes = strings.TrimSpace(req.Notes)

	if req.CustomerName == "" || req.CustomerPhone == "" {
		return nil, &payment.ValidationError{Message: "customer_name and customer_phone are required"}
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, &payment.ValidationError{Message: fmt.Sprintf("invalid checkout: %v", err)}
	}

	c := cart.New()
	for _, it := range req.Items {
		c.Add(cart.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	products, err := s.repo.ProductsByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, &payment.PersistenceError{Op: "load products", Err: err}
	}

	for _, it := range c.Items() {
		p, ok := products[it.ProductID]
		if !ok || !p.IsActive {
			return nil, &payment.ValidationError{Message: fmt.Sprintf("product %s is not available", it.ProductID)}
		}
		if p.ProductType == productPhysical && p.StockQuantity != nil && *p.StockQuantity < it.Quantity {
			return nil, &payment.ValidationError{Message: fmt.Sprintf("not enough stock for %s", p.Name)}
		}
		c.Reprice(p.ID, p.Name, p.Price)
	}

	total := c.TotalPrice()
	if total < payment.MinAmount || total > payment.MaxAmount {
		return nil, &payment.ValidationError{
			Message: fmt.Sprintf("order total must be between %d and %d %s", payment.MinAmount, payment.MaxAmount, models.CurrencyXOF),
		}
	}

	// The order carries its transaction id before the provider is called, so
	// an early webhook can already confirm it.
	transactionID := s.payments.NewTransactionID()

	order := &models.Order{
		OrderNumber:          s.newOrderNumber(),
		PaymentTransactionID: &transactionID,
		CustomerName:         req.CustomerName,
		CustomerPhone:        req.CustomerPhone,
		CustomerEmail:        optional(req.CustomerEmail),
		ShippingAddress:      optional(req.ShippingAddress),
		Notes:                optional(req.Notes),
		TotalAmount:          total,
		Currency:             models.CurrencyXOF,
		Status:               models.OrderPending,
	}
	for _, it := range c.Items() {
		productID := it.ProductID
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   &productID,
			ProductName: it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.Total(),
		})
	}

	log := s.log.With(
		zap.String("order_number", order.OrderNumber),
		zap.String("transaction_id", transactionID),
		zap.Int64("total", total),
	)

	if err := s.repo.CreateWithItems(ctx, order); err != nil {
		log.Error("failed to create order", zap.Error(err))
		return nil, &payment.PersistenceError{Op: "create order", Err: err}
	}

	res, err := s.payments.Initialize(ctx, payment.InitializeRequest{
		Amount:        decimal.NewFromInt(total),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Description:   "Commande Impact Shop - " + order.OrderNumber,
		Origin:        req.Origin,
		TransactionID: transactionID,
	})
	if err != nil {
		log.Error("failed to initialize order payment", zap.Error(err))
		return nil, err
	}

	log.Info("order created", zap.Int("items", c.TotalItems()))

	return &CheckoutResponse{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		TotalAmount:   total,
		PaymentURL:    res.PaymentURL,
		TransactionID: res.TransactionID,
	}, nil
}

// ConfirmPaid moves the pending order paid by transactionID to confirmed
func (s *Service) ConfirmPaid(ctx context.Context, transactionID string) (bool, error) {
	return s.repo.ConfirmByTransaction(ctx, transactionID)
}

// List returns orders newest first
func (s *Service) List(ctx context.Context, f repository.ListFilter) ([]models.Order, error) {
	if f.Status != "" && !models.OrderStatus(f.Status).Valid() {
		return nil, &payment.ValidationError{Message: "invalid status filter"}
	}
	orders, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, &payment.PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

// Get returns one order with its items
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &payment.PersistenceError{Op: "get order", Err: err}
	}
	return o, nil
}

// UpdateStatus sets the fulfilment status of an order
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	if !status.Valid() {
		return &payment.ValidationError{Message: fmt.Sprintf("invalid order status %q", status)}
	}
	err := s.repo.UpdateStatus(ctx, id, status)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return &payment.PersistenceError{Op: "update order status", Err: err}
	}
	s.log.Info("order status updated", zap.String("order_id", id.String()), zap.String("status", string(status)))
	return nil
}

// newOrderNumber formats IMP-YYYYMMDD-XXXXXX
func (s *Service) newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("IMP-%s-%s", s.now().Format("20060102"), suffix)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
