package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/impact-gateway/internal/models"
)

// ErrNotFound is returned when no row matches
var ErrNotFound = errors.New("record not found")

// PaymentRepository persists payment records
type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ListFilter narrows list queries of the back-office
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Create inserts a new pending payment and fills the generated columns
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	insertSQL := `
		INSERT INTO payments (
			transaction_id, amount, currency, customer_name,
			customer_phone, customer_email, description, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, insertSQL,
		p.TransactionID,
		p.Amount,
		p.Currency,
		p.CustomerName,
		p.CustomerPhone,
		p.CustomerEmail,
		p.Description,
		string(p.Status),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

// GetByTransactionID fetches the full record
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	query := `
		SELECT id, transaction_id, amount, currency, customer_name, customer_phone,
		       customer_email, description, status, payment_method, provider_data,
		       created_at, updated_at
		FROM payments
		WHERE transaction_id = $1
	`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// GetSnapshot returns the polling view, or ErrNotFound
func (r *PaymentRepository) GetSnapshot(ctx context.Context, transactionID string) (*models.PaymentSnapshot, error) {
	query := `
		SELECT status, payment_method, amount, currency
		FROM payments
		WHERE transaction_id = $1
	`

	var (
		s      models.PaymentSnapshot
		status string
	)
	err := r.db.QueryRowContext(ctx, query, transactionID).Scan(&status, &s.PaymentMethod, &s.Amount, &s.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment snapshot: %w", err)
	}
	s.Status = models.PaymentStatus(status)
	return &s, nil
}

// UpdateVerification writes the verified status. The guard only lets a pending
// record move, or a terminal record be rewritten with the same status, so a
// late duplicate webhook can never revert a terminal payment.
func (r *PaymentRepository) UpdateVerification(ctx context.Context, transactionID string, status models.PaymentStatus, paymentMethod *string, providerData []byte) (bool, error) {
	updateSQL := `
		UPDATE payments
		SET status = $1,
		    payment_method = COALESCE($2, payment_method),
		    provider_data = $3,
		    updated_at = NOW()
		WHERE transaction_id = $4 AND (status = 'pending' OR status = $1)
	`

	result, err := r.db.ExecContext(ctx, updateSQL, string(status), paymentMethod, providerData, transactionID)
	if err != nil {
		return false, fmt.Errorf("update payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update payment rows: %w", err)
	}
	return rows > 0, nil
}

// List returns payments newest first
func (r *PaymentRepository) List(ctx context.Context, f ListFilter) ([]models.Payment, error) {
	f = f.normalized()

	query := `
		SELECT id, transaction_id, amount, currency, customer_name, customer_phone,
		       customer_email, description, status, payment_method, provider_data,
		       created_at, updated_at
		FROM payments
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p            models.Payment
		status       string
		providerData []byte
	)
	err := row.Scan(
		&p.ID,
		&p.TransactionID,
		&p.Amount,
		&p.Currency,
		&p.CustomerName,
		&p.CustomerPhone,
		&p.CustomerEmail,
		&p.Description,
		&status,
		&p.PaymentMethod,
		&providerData,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	if len(providerData) > 0 {
		p.ProviderData = providerData
	}
	return &p, nil
}
