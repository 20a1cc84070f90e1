package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/impact-gateway/internal/cinetpay"
	"github.com/impact-gateway/internal/config"
	"github.com/impact-gateway/internal/database"
	"github.com/impact-gateway/internal/logger"
	"github.com/impact-gateway/internal/payment"
	"github.com/impact-gateway/internal/queue"
	"github.com/impact-gateway/internal/repository"
	"github.com/impact-gateway/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "impact worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	log.Info("impact payment worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(ctx, database.Options{
		URL:        cfg.DatabaseURL,
		ServiceKey: cfg.DatabaseServiceKey,
		MinConns:   cfg.DBMinConns,
		MaxConns:   cfg.DBMaxConns,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	q, err := queue.NewQueue(cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	defer q.Close()

	provider := cinetpay.NewClient(cfg.CinetPayAPIKey, cfg.CinetPaySiteID, cfg.CinetPayBaseURL, cfg.CinetPayTimeout, log.Named("cinetpay"))

	// The worker only verifies; it never initializes payments, so the
	// order repository is enough to confirm paid orders.
	paymentService := payment.NewService(
		repository.NewPaymentRepository(db.SQL),
		provider,
		payment.Config{NotifyURL: cfg.NotifyURL(), SiteURL: cfg.SiteURL},
		log.Named("payment"),
		payment.WithOrderConfirmer(orderConfirmer{repository.NewOrderRepository(db.SQL)}),
	)

	processor := worker.NewProcessor(paymentService, log.Named("worker"))
	processor.Register(q.Mux)

	redisOpt, err := queue.RedisOpt(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create worker config: %w", err)
	}
	asynqServer := asynq.NewServer(redisOpt, queue.ServerConfig(cfg.WorkerConcurrency, log.Named("asynq")))

	if err := asynqServer.Start(q.Mux); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	log.Info("worker started, processing tasks")

	<-ctx.Done()
	log.Info("shutting down worker")
	asynqServer.Shutdown()

	log.Info("worker shutdown complete")
	return nil
}

type orderConfirmer struct {
	repo *repository.OrderRepository
}

func (c orderConfirmer) ConfirmPaid(ctx context.Context, transactionID string) (bool, error) {
	return c.repo.ConfirmByTransaction(ctx, transactionID)
}
