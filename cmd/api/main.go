package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/cinetpay"
	"github.com/impact-gateway/internal/config"
	"github.com/impact-gateway/internal/database"
	"github.com/impact-gateway/internal/handlers"
	"github.com/impact-gateway/internal/logger"
	"github.com/impact-gateway/internal/orders"
	"github.com/impact-gateway/internal/payment"
	"github.com/impact-gateway/internal/queue"
	"github.com/impact-gateway/internal/repository"
	"github.com/impact-gateway/internal/server"
	"github.com/impact-gateway/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "impact gateway: %v\n", err)
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

	log.Info("impact payment gateway starting")
	cfg.LogSafeConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
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

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	// Initialize queue
	q, err := queue.NewQueue(cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	defer q.Close()

	paymentRepo := repository.NewPaymentRepository(db.SQL)
	orderRepo := repository.NewOrderRepository(db.SQL)

	provider := cinetpay.NewClient(cfg.CinetPayAPIKey, cfg.CinetPaySiteID, cfg.CinetPayBaseURL, cfg.CinetPayTimeout, log.Named("cinetpay"))

	// orders and payments reference each other: the order service starts
	// payments, the payment service confirms orders
	orderConfirmer := &lazyConfirmer{}
	paymentService := payment.NewService(
		paymentRepo,
		provider,
		payment.Config{NotifyURL: cfg.NotifyURL(), SiteURL: cfg.SiteURL},
		log.Named("payment"),
		payment.WithOrderConfirmer(orderConfirmer),
		payment.WithRetryScheduler(q),
	)
	orderService := orders.NewService(orderRepo, paymentService, log.Named("orders"))
	orderConfirmer.orders = orderService

	httpHandlers := handlers.NewHandler(paymentService, orderService, paymentRepo, db, log)

	// Background re-verification runs in-process alongside the API
	processor := worker.NewProcessor(paymentService, log.Named("worker"))
	processor.Register(q.Mux)

	redisOpt, err := queue.RedisOpt(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create worker config: %w", err)
	}
	asynqServer := asynq.NewServer(redisOpt, queue.ServerConfig(cfg.WorkerConcurrency, log.Named("asynq")))
	if err := asynqServer.Start(q.Mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	defer asynqServer.Shutdown()

	httpServer := server.NewServer(cfg, httpHandlers, log)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}

	log.Info("shutdown complete")
	return nil
}

// lazyConfirmer lets the payment service be built before the order service
type lazyConfirmer struct {
	orders *orders.Service
}

func (c *lazyConfirmer) ConfirmPaid(ctx context.Context, transactionID string) (bool, error) {
	return c.orders.ConfirmPaid(ctx, transactionID)
}
