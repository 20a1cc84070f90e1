package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/impact-gateway/internal/models"
)

var paymentColumns = []string{
	"id", "transaction_id", "amount", "currency", "customer_name", "customer_phone",
	"customer_email", "description", "status", "payment_method", "provider_data",
	"created_at", "updated_at",
}

func TestPaymentRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)
	email := "awa@example.com"
	p := &models.Payment{
		TransactionID: "PAY-1-abc123",
		Amount:        5000,
		Currency:      models.CurrencyXOF,
		CustomerName:  "Awa",
		CustomerPhone: "+2250102030405",
		CustomerEmail: &email,
		Status:        models.StatusPending,
	}

	t.Run("Success", func(t *testing.T) {
		id := uuid.New()
		now := time.Now()
		mock.ExpectQuery(`INSERT INTO payments`).
			WithArgs(p.TransactionID, p.Amount, p.Currency, p.CustomerName, p.CustomerPhone, p.CustomerEmail, p.Description, "pending").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id.String(), now, now))

		err := repo.Create(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, id, p.ID)
		assert.Equal(t, now, p.CreatedAt)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO payments`).WillReturnError(errors.New("connection reset"))

		err := repo.Create(context.Background(), p)
		assert.ErrorContains(t, err, "insert payment")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetByTransactionID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)

	t.Run("Found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`SELECT (.+) FROM payments WHERE transaction_id = \$1`).
			WithArgs("PAY-1").
			WillReturnRows(sqlmock.NewRows(paymentColumns).AddRow(
				uuid.NewString(), "PAY-1", int64(5000), "XOF", "Awa", "+2250102030405",
				nil, nil, "completed", "OMCI", []byte(`{"status":"ACCEPTED"}`), now, now,
			))

		p, err := repo.GetByTransactionID(context.Background(), "PAY-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, p.Status)
		require.NotNil(t, p.PaymentMethod)
		assert.Equal(t, "OMCI", *p.PaymentMethod)
		assert.Nil(t, p.CustomerEmail)
		assert.JSONEq(t, `{"status":"ACCEPTED"}`, string(p.ProviderData))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM payments`).
			WithArgs("PAY-404").
			WillReturnRows(sqlmock.NewRows(paymentColumns))

		p, err := repo.GetByTransactionID(context.Background(), "PAY-404")
		assert.Nil(t, p)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)

	mock.ExpectQuery(`SELECT status, payment_method, amount, currency FROM payments`).
		WithArgs("PAY-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "payment_method", "amount", "currency"}).
			AddRow("pending", nil, int64(5000), "XOF"))

	s, err := repo.GetSnapshot(context.Background(), "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, s.Status)
	assert.Nil(t, s.PaymentMethod)
	assert.Equal(t, int64(5000), s.Amount)

	mock.ExpectQuery(`SELECT status, payment_method, amount, currency FROM payments`).
		WithArgs("PAY-404").
		WillReturnRows(sqlmock.NewRows([]string{"status", "payment_method", "amount", "currency"}))

	_, err = repo.GetSnapshot(context.Background(), "PAY-404")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_UpdateVerification(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)
	method := "OMCI"
	data := []byte(`{"status":"ACCEPTED"}`)

	t.Run("Updated", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payments SET status = \$1, (.+) WHERE transaction_id = \$4 AND \(status = 'pending' OR status = \$1\)`).
			WithArgs("completed", &method, data, "PAY-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.UpdateVerification(context.Background(), "PAY-1", models.StatusCompleted, &method, data)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Guarded", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payments`).
			WithArgs("pending", nil, data, "PAY-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.UpdateVerification(context.Background(), "PAY-1", models.StatusPending, nil, data)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payments`).WillReturnError(errors.New("deadlock detected"))

		_, err := repo.UpdateVerification(context.Background(), "PAY-1", models.StatusFailed, nil, nil)
		assert.ErrorContains(t, err, "update payment")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM payments WHERE \(\$1 = '' OR status = \$1\) ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("failed", 50, 0).
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow(uuid.NewString(), "PAY-2", int64(100), "XOF", "Koffi", "+2250700000000", nil, nil, "failed", "MOMO", nil, now, now).
			AddRow(uuid.NewString(), "PAY-1", int64(200), "XOF", "Awa", "+2250102030405", nil, nil, "failed", nil, nil, now, now))

	payments, err := repo.List(context.Background(), ListFilter{Status: "failed", Limit: 500, Offset: -3})
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "PAY-2", payments[0].TransactionID)
	assert.Nil(t, payments[1].ProviderData)

	assert.NoError(t, mock.ExpectationsWereMet())
}
