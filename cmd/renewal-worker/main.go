package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/guard"
	"github.com/tutorloop/platform/internal/infra"
	"github.com/tutorloop/platform/internal/ledger"
	"github.com/tutorloop/platform/internal/provider"
	"github.com/tutorloop/platform/internal/repository"
	"github.com/tutorloop/platform/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("renewal worker failed", "error", err)
		os.Exit(1)
	}
}

// eventEnvelope is the message shape published by the outbox relay.
type eventEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("renewal-worker connected to postgres")

	ledgerRepo := repository.NewLedgerRepository()
	subscriptionRepo := repository.NewSubscriptionRepository()
	renewalRepo := repository.NewRenewalRepository()
	outboxRepo := repository.NewOutboxRepository()
	ledgerEngine := ledger.NewEngine(ledgerRepo, subscriptionRepo, outboxRepo)

	stripeProvider := provider.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	notifier := provider.NewNotifier(cfg.NotifierURL)
	stripeBreaker := guard.NewCircuitBreaker(5, time.Minute)

	renewalSvc := service.NewRenewalService(
		pool, ledgerEngine, renewalRepo, subscriptionRepo, outboxRepo,
		stripeProvider, notifier, stripeBreaker, logger,
	)

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, cfg.RenewalTopic, cfg.RenewalGroupID, cfg.KafkaEnabled, logger)
	defer consumer.Close()

	if !consumer.Enabled() {
		logger.Warn("kafka disabled, renewal worker idle; set KAFKA_ENABLED=true to process renewals")
		<-ctx.Done()
		return nil
	}

	logger.Info("renewal-worker consuming", "topic", cfg.RenewalTopic, "group", cfg.RenewalGroupID)

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("renewal-worker shutting down")
				return nil
			}
			logger.Error("read message", "error", err)
			continue
		}

		var envelope eventEnvelope
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			logger.Error("unmarshal envelope", "error", err, "offset", msg.Offset)
			continue
		}
		if envelope.EventType != string(domain.EventRenewalRequested) {
			continue
		}

		var payload domain.RenewalRequestedPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			logger.Error("unmarshal renewal payload", "error", err, "event_id", envelope.EventID)
			continue
		}

		// Charge failures are recorded on the student's settings and must not
		// return an error, or the message would be redelivered and recharged.
		if err := renewalSvc.ProcessRenewalRequest(ctx, payload); err != nil {
			logger.Error("process renewal request", "error", err, "student_id", payload.StudentID)
		}
	}
}
