package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/payment"
)

const (
	TypeVerifyPayment = "payment:verify"
)

// VerifyPaymentPayload is the task body of a re-verification
type VerifyPaymentPayload struct {
	TransactionID string `json:"transaction_id"`
}

// Verifier re-checks a transaction with the provider and records the result
type Verifier interface {
	Verify(ctx context.Context, transactionID string) (*payment.VerifyResult, error)
}

// Processor handles background job processing
type Processor struct {
	verifier Verifier
	log      *zap.Logger
}

// NewProcessor creates a new worker processor
func NewProcessor(verifier Verifier, log *zap.Logger) *Processor {
	return &Processor{verifier: verifier, log: log}
}

// NewVerifyPaymentTask creates a new re-verification task
func NewVerifyPaymentTask(transactionID string) (*asynq.Task, error) {
	payload, err := json.Marshal(VerifyPaymentPayload{TransactionID: transactionID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verify payload: %w", err)
	}
	return asynq.NewTask(TypeVerifyPayment, payload), nil
}

// Register attaches the task handlers to mux
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeVerifyPayment, p.ProcessVerification)
}

// ProcessVerification re-runs the webhook verification. Returning an error
// lets asynq retry with backoff.
func (p *Processor) ProcessVerification(ctx context.Context, t *asynq.Task) error {
	var payload VerifyPaymentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal verify payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TransactionID == "" {
		return fmt.Errorf("missing transaction_id in task: %w", asynq.SkipRetry)
	}

	log := p.log.With(zap.String("transaction_id", payload.TransactionID))
	if retried, ok := asynq.GetRetryCount(ctx); ok {
		log = log.With(zap.Int("retry", retried))
	}

	res, err := p.verifier.Verify(ctx, payload.TransactionID)
	if err != nil {
		log.Warn("background verification failed", zap.Error(err))
		return fmt.Errorf("verify %s: %w", payload.TransactionID, err)
	}

	if !res.Found {
		log.Info("background verification skipped unknown transaction")
		return nil
	}

	log.Info("background verification done",
		zap.String("status", string(res.Status)),
		zap.Bool("updated", res.Updated),
	)
	return nil
}
