package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/impact-gateway/internal/models"
)

// OrderRepository persists shop orders and reads the catalog prices
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ProductsByIDs loads the catalog entries of a cart, keyed by id
func (r *OrderRepository) ProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	query := `
		SELECT id, name, price, product_type, is_active, stock_quantity
		FROM shop_products
		WHERE id = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()

	products := make(map[string]models.Product, len(ids))
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.ProductType, &p.IsActive, &p.StockQuantity); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

// CreateWithItems inserts the order and its lines in one transaction
func (r *OrderRepository) CreateWithItems(ctx context.Context, o *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertOrderSQL := `
		INSERT INTO shop_orders (
			order_number, customer_name, customer_phone, customer_email,
			shipping_address, notes, total_amount, currency, status,
			payment_transaction_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRowContext(ctx, insertOrderSQL,
		o.OrderNumber,
		o.CustomerName,
		o.CustomerPhone,
		o.CustomerEmail,
		o.ShippingAddress,
		o.Notes,
		o.TotalAmount,
		o.Currency,
		string(o.Status),
		o.PaymentTransactionID,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	insertItemSQL := `
		INSERT INTO shop_order_items (
			order_id, product_id, product_name, quantity, unit_price, total_price
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := tx.QueryRowContext(ctx, insertItemSQL,
			o.ID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ConfirmByTransaction moves the pending order paid by transactionID to confirmed
func (r *OrderRepository) ConfirmByTransaction(ctx context.Context, transactionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE shop_orders
		SET status = 'confirmed', updated_at = NOW()
		WHERE payment_transaction_id = $1 AND status = 'pending'
	`, transactionID)
	if err != nil {
		return false, fmt.Errorf("confirm order: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("confirm order rows: %w", err)
	}
	return rows > 0, nil
}

// UpdateStatus sets the fulfilment status from the back-office
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE shop_orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const orderColumns = `
	id, order_number, customer_name, customer_phone, customer_email,
	shipping_address, notes, total_amount, currency, status,
	payment_transaction_id, created_at, updated_at
`

// List returns orders newest first, without items
func (r *OrderRepository) List(ctx context.Context, f ListFilter) ([]models.Order, error) {
	f = f.normalized()

	query := `SELECT ` + orderColumns + `
		FROM shop_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// Get returns one order with its items
func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM shop_orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price, created_at
		FROM shop_order_items
		WHERE order_id = $1
		ORDER BY created_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	o.Items = []models.OrderItem{}
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o      models.Order
		status string
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.CustomerName,
		&o.CustomerPhone,
		&o.CustomerEmail,
		&o.ShippingAddress,
		&o.Notes,
		&o.TotalAmount,
		&o.Currency,
		&status,
		&o.PaymentTransactionID,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	return &o, nil
}
