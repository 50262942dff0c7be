package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/wellness-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/wellness-booking/internal/config"
	"github.com/wolfman30/wellness-booking/internal/credits"
	"github.com/wolfman30/wellness-booking/internal/events"
	"github.com/wolfman30/wellness-booking/internal/notify"
	"github.com/wolfman30/wellness-booking/internal/observability/tracing"
	"github.com/wolfman30/wellness-booking/internal/platform/database"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// credit-worker runs the expiry sweep and drains the outbox to SQS and email.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("credit-worker")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("credit worker requires DATABASE_URL")
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName + "-worker",
		Environment: cfg.Env,
	}, logger)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	pool, err := database.OpenPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var awsCfg *aws.Config
	if cfg.AWSEnabled() {
		loaded, err := bootstrap.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}

	services := bootstrap.BuildServices(cfg, bootstrap.Deps{Pool: pool, Registry: prometheus.DefaultRegisterer}, logger)
	sweeper := credits.NewSweeper(services.Credits, cfg.CreditExpiryInterval, logger)

	sender := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	handler := deliveryHandler(cfg, awsCfg, sender, events.NewProcessedStore(pool), logger)
	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), handler, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); sweeper.Start(ctx) }()
	go func() { defer wg.Done(); deliverer.Start(ctx) }()
	logger.Info("credit worker started",
		"expiry_interval", cfg.CreditExpiryInterval.String(),
		"outbox_interval", cfg.OutboxPollInterval.String(),
		"email_provider", cfg.EmailProvider,
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("credit worker shutting down")
	cancel()
	wg.Wait()
	if shutdownTracing != nil {
		_ = shutdownTracing(context.Background())
	}
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
}

// deliveryHandler fans each outbox entry out to the credit email notifier
// and, when OUTBOX_QUEUE_URL is set, to SQS for downstream consumers.
func deliveryHandler(cfg *appconfig.Config, awsCfg *aws.Config, sender notify.EmailSender, processed processedTracker, logger *logging.Logger) events.DeliveryHandler {
	fan := events.FanOut{notify.NewCreditNotifier(sender, processed, logger)}
	if cfg.OutboxQueueURL != "" && awsCfg != nil {
		fan = append(fan, events.NewSQSPublisher(bootstrap.NewSQSClient(*awsCfg), cfg.OutboxQueueURL))
	}
	return fan
}
