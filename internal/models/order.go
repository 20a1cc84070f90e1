package models

import (
	"time"

	"github.com/google/uuid"
)

// Order is a shop order paid through a Payment
type Order struct {
	ID                   uuid.UUID   `db:"id" json:"id"`
	OrderNumber          string      `db:"order_number" json:"order_number"`
	CustomerName         string      `db:"customer_name" json:"customer_name"`
	CustomerPhone        string      `db:"customer_phone" json:"customer_phone"`
	CustomerEmail        *string     `db:"customer_email" json:"customer_email,omitempty"`
	ShippingAddress      *string     `db:"shipping_address" json:"shipping_address,omitempty"`
	Notes                *string     `db:"notes" json:"notes,omitempty"`
	TotalAmount          int64       `db:"total_amount" json:"total_amount"`
	Currency             string      `db:"currency" json:"currency"`
	Status               OrderStatus `db:"status" json:"status"`
	PaymentTransactionID *string     `db:"payment_transaction_id" json:"payment_transaction_id,omitempty"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
	Items                []OrderItem `json:"items,omitempty"`
}

// OrderItem is one priced line of an order
type OrderItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OrderID     uuid.UUID `db:"order_id" json:"order_id"`
	ProductID   *string   `db:"product_id" json:"product_id,omitempty"`
	ProductName string    `db:"product_name" json:"product_name"`
	Quantity    int       `db:"quantity" json:"quantity"`
	UnitPrice   int64     `db:"unit_price" json:"unit_price"`
	TotalPrice  int64     `db:"total_price" json:"total_price"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// OrderStatus is the fulfilment state managed from the back-office
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Product is the read-only catalog entry used to price a cart
type Product struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	Price         int64  `db:"price"`
	ProductType   string `db:"product_type"`
	IsActive      bool   `db:"is_active"`
	StockQuantity *int   `db:"stock_quantity"`
}
