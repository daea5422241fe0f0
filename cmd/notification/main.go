// The notification service consumes alert events and delivers them to the
// configured channels, throttled and circuit-broken per sink.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/bus"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/config"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/logging"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/notify"
)

func main() {
	bootLogger := logging.New("notification", "info", "json")
	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("configuration failed")
	}
	logger := logging.New("notification", cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks []notify.Sink
	for _, channel := range cfg.EnabledChannels {
		switch strings.ToLower(strings.TrimSpace(channel)) {
		case "slack":
			if cfg.SlackWebhookURL == "" {
				logger.Warn().Msg("slack channel enabled without SLACK_WEBHOOK_URL, skipping")
				continue
			}
			sinks = append(sinks, notify.NewSlackSink(cfg.SlackWebhookURL))
		case "email":
			if cfg.SMTPHost == "" || len(cfg.SMTPTo) == 0 {
				logger.Warn().Msg("email channel enabled without SMTP configuration, skipping")
				continue
			}
			sinks = append(sinks, notify.NewEmailSink(
				cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
				cfg.SMTPFrom, cfg.SMTPTo))
		case "webhook":
			if len(cfg.WebhookURLs) == 0 {
				logger.Warn().Msg("webhook channel enabled without NOTIFICATION_WEBHOOK_URLS, skipping")
				continue
			}
			sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURLs,
				&http.Client{Timeout: cfg.NotifyTimeout}))
		}
	}
	if len(sinks) == 0 {
		logger.Warn().Msg("no notification sinks configured, alerts will only be logged")
	}

	pool := notify.NewPool(cfg.WorkerPoolSize, cfg.WorkerPoolSize*16, logger)
	pool.Start(ctx)

	var throttler *notify.Throttler
	if cfg.ThrottlingEnabled {
		throttler = notify.NewThrottler(
			time.Duration(cfg.DuplicateSuppressionMinutes)*time.Minute,
			cfg.MaxNotificationsPerHour)
	}

	notifier := notify.NewNotifier(sinks, throttler, pool, cfg.NotifyTimeout, logger)

	consumer, err := bus.NewConsumer(bus.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Group:   cfg.GroupNotification,
		Topic:   cfg.TopicAlerts,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("kafka consumer failed")
	}
	consumer.Run(ctx, notify.AlertHandler(notifier, logger))
	defer consumer.Close()

	go metrics.Serve(ctx, cfg.MetricsAddr, logger)

	logger.Info().Int("sinks", len(sinks)).Msg("notification service started")
	<-ctx.Done()
	logger.Info().Msg("notification service stopping")
	pool.Wait()
}
