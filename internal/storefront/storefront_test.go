package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/models"
)

func TestClient_Initialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment", r.URL.Path)
		assert.Equal(t, "https://shop.example.com", r.Header.Get("Origin"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(5000), body["amount"])
		assert.Equal(t, "Awa", body["customer_name"])
		assert.NotContains(t, body, "customer_email")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"payment_url":"https://checkout.example/p/1","transaction_id":"PAY-1-abcdef"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "https://shop.example.com", time.Second)
	resp, err := c.Initialize(context.Background(), InitializeRequest{
		Amount:        5000,
		CustomerName:  "Awa",
		CustomerPhone: "0700000000",
	})

	require.NoError(t, err)
	assert.Equal(t, "PAY-1-abcdef", resp.TransactionID)
	assert.Equal(t, "https://checkout.example/p/1", resp.PaymentURL)
}

func TestClient_Initialize_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"amount must be between 100 and 1500000"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Initialize(context.Background(), InitializeRequest{Amount: 50})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "between")
}

func TestClient_Status(t *testing.T) {
	t.Run("known transaction", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "status", r.URL.Query().Get("action"))
			assert.Equal(t, "PAY-1", r.URL.Query().Get("transaction_id"))
			w.Write([]byte(`{"data":{"status":"completed","payment_method":"OM","amount":5000,"currency":"XOF"}}`))
		}))
		defer srv.Close()

		snap, err := NewClient(srv.URL, "", time.Second).Status(context.Background(), "PAY-1")
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, models.StatusCompleted, snap.Status)
		require.NotNil(t, snap.PaymentMethod)
		assert.Equal(t, "OM", *snap.PaymentMethod)
		assert.Equal(t, int64(5000), snap.Amount)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":null}`))
		}))
		defer srv.Close()

		snap, err := NewClient(srv.URL, "", time.Second).Status(context.Background(), "PAY-x")
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("non json error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("bad gateway"))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, "", time.Second).Status(context.Background(), "PAY-1")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
	})
}

type scriptedSource struct {
	mu    sync.Mutex
	steps []func() (*models.PaymentSnapshot, error)
	calls int
}

func (s *scriptedSource) Status(ctx context.Context, transactionID string) (*models.PaymentSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i]()
}

func snapshot(status models.PaymentStatus) func() (*models.PaymentSnapshot, error) {
	return func() (*models.PaymentSnapshot, error) {
		return &models.PaymentSnapshot{Status: status, Amount: 5000, Currency: "XOF"}, nil
	}
}

func TestPoller_Watch_StopsOnTerminal(t *testing.T) {
	src := &scriptedSource{steps: []func() (*models.PaymentSnapshot, error){
		func() (*models.PaymentSnapshot, error) { return nil, nil },
		func() (*models.PaymentSnapshot, error) { return nil, errors.New("connection refused") },
		snapshot(models.StatusPending),
		snapshot(models.StatusCompleted),
	}}

	var seen []Update
	p := NewPoller(src, time.Millisecond, zap.NewNop())
	final, err := p.Watch(context.Background(), "PAY-1", func(u Update) { seen = append(seen, u) })

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)
	require.Len(t, seen, 4)
	assert.Equal(t, models.StatusPending, seen[0].Status)
	assert.Nil(t, seen[0].Snapshot)
	assert.Equal(t, models.StatusPending, seen[1].Status)
	assert.Error(t, seen[1].Err)
	assert.Equal(t, 4, src.calls)
}

func TestPoller_Watch_FailedIsTerminal(t *testing.T) {
	src := &scriptedSource{steps: []func() (*models.PaymentSnapshot, error){snapshot(models.StatusFailed)}}

	final, err := NewPoller(src, time.Hour, zap.NewNop()).Watch(context.Background(), "PAY-1", nil)

	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Equal(t, 1, src.calls)
}

func TestPoller_Watch_Cancelled(t *testing.T) {
	src := &scriptedSource{steps: []func() (*models.PaymentSnapshot, error){snapshot(models.StatusPending)}}

	ctx, cancel := context.WithCancel(context.Background())
	var n int32
	p := NewPoller(src, time.Millisecond, zap.NewNop())
	final, err := p.Watch(ctx, "PAY-1", func(u Update) {
		if atomic.AddInt32(&n, 1) == 3 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusPending, final.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&n))
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(&scriptedSource{}, 0, zap.NewNop())
	assert.Equal(t, DefaultPollInterval, p.interval)
}

func TestPoller_WithClient(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.Write([]byte(`{"data":{"status":"pending","payment_method":null,"amount":1000,"currency":"XOF"}}`))
			return
		}
		w.Write([]byte(`{"data":{"status":"failed","payment_method":null,"amount":1000,"currency":"XOF"}}`))
	}))
	defer srv.Close()

	p := NewPoller(NewClient(srv.URL, "", time.Second), time.Millisecond, zap.NewNop())
	final, err := p.Watch(context.Background(), "PAY-2", nil)

	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}
