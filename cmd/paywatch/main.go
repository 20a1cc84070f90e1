// Command paywatch starts or follows a payment through the gateway API and
// waits until the provider settles it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/impact-gateway/internal/logger"
	"github.com/impact-gateway/internal/models"
	"github.com/impact-gateway/internal/storefront"
)

func main() {
	var (
		apiURL   = flag.String("api", "http://localhost:8080", "gateway base URL")
		origin   = flag.String("origin", "", "storefront origin used for the return URL")
		txID     = flag.String("tx", "", "transaction id to follow; a new payment is started when empty")
		amount   = flag.Int64("amount", 0, "amount in XOF for a new payment")
		name     = flag.String("name", "", "customer name for a new payment")
		phone    = flag.String("phone", "", "customer phone for a new payment")
		email    = flag.String("email", "", "customer email for a new payment")
		interval = flag.Duration("interval", storefront.DefaultPollInterval, "poll interval")
		timeout  = flag.Duration("timeout", 10*time.Second, "per-request timeout")
	)
	flag.Parse()

	log, err := logger.New("development")
	if err != nil {
		fmt.Fprintf(os.Stderr, "paywatch: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := storefront.NewClient(*apiURL, *origin, *timeout)

	id := *txID
	if id == "" {
		resp, err := client.Initialize(ctx, storefront.InitializeRequest{
			Amount:        *amount,
			CustomerName:  *name,
			CustomerPhone: *phone,
			CustomerEmail: *email,
		})
		if err != nil {
			log.Fatal("failed to start payment", zap.Error(err))
		}
		id = resp.TransactionID
		fmt.Printf("transaction: %s\npay at: %s\n", resp.TransactionID, resp.PaymentURL)
	}

	poller := storefront.NewPoller(client, *interval, log)
	final, err := poller.Watch(ctx, id, func(u storefront.Update) {
		fmt.Printf("%s  %s\n", time.Now().Format(time.TimeOnly), u.Status)
	})
	if err != nil {
		fmt.Printf("stopped while %s\n", final.Status)
		os.Exit(130)
	}

	if final.Snapshot != nil && final.Snapshot.PaymentMethod != nil {
		fmt.Printf("paid with %s\n", *final.Snapshot.PaymentMethod)
	}
	if final.Status != models.StatusCompleted {
		os.Exit(2)
	}
}
