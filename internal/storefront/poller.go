package storefront

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/impact-gateway/internal/models"
)

// DefaultPollInterval matches the payment page refresh
const DefaultPollInterval = 5 * time.Second

// StatusSource is anything that can report a payment snapshot
type StatusSource interface {
	Status(ctx context.Context, transactionID string) (*models.PaymentSnapshot, error)
}

// Update is one observation of a polled payment
type Update struct {
	TransactionID string
	Status        models.PaymentStatus
	Snapshot      *models.PaymentSnapshot
	Err           error
}

// Poller follows a payment until it reaches a terminal status
type Poller struct {
	source   StatusSource
	interval time.Duration
	log      *zap.Logger
}

func NewPoller(source StatusSource, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{source: source, interval: interval, log: log}
}

// Watch polls immediately, then every interval, calling onUpdate each time.
// It returns the terminal update, or ctx.Err() when cancelled first.
// Errors and unknown transactions are reported as pending and polling goes on.
func (p *Poller) Watch(ctx context.Context, transactionID string, onUpdate func(Update)) (Update, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		u := p.poll(ctx, transactionID)
		if onUpdate != nil {
			onUpdate(u)
		}
		if u.Status.IsTerminal() {
			return u, nil
		}
		if err := ctx.Err(); err != nil {
			return u, err
		}

		select {
		case <-ctx.Done():
			return u, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, transactionID string) Update {
	u := Update{TransactionID: transactionID, Status: models.StatusPending}

	snap, err := p.source.Status(ctx, transactionID)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("status poll failed", zap.String("transaction_id", transactionID), zap.Error(err))
		}
		u.Err = err
		return u
	}
	if snap != nil {
		u.Snapshot = snap
		u.Status = snap.Status
	}
	return u
}
