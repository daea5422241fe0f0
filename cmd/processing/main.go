// The processing service consumes raw metrics, aggregates them into the
// cache and history store, evaluates alert rules, and publishes alert
// lifecycle events. It also owns the database schema and history retention.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/aggregate"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/alert"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/bus"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/cache"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/config"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/logging"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/processing"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/store"
)

// pruneInterval paces the retention sweep.
const pruneInterval = time.Hour

func main() {
	bootLogger := logging.New("processing", "info", "json")
	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("configuration failed")
	}
	logger := logging.New("processing", cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection failed")
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("schema setup failed")
	}

	cacheClient := cache.New(cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Timeout:  cfg.IOTimeout,
		Logger:   logger,
	})
	defer cacheClient.Close()

	alertProducer, err := bus.NewProducer(cfg.KafkaBrokers, cfg.TopicAlerts, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("kafka producer failed")
	}
	defer alertProducer.Close()

	aggregator := aggregate.New(cacheClient, st, cfg.CacheTTL(), logger)
	engine := alert.NewEngine(st, st, cacheClient, bus.NewAlertPublisher(alertProducer), logger)
	processor := processing.New(aggregator, engine, logger)

	consumer, err := bus.NewConsumer(bus.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Group:   cfg.GroupProcessing,
		Topic:   cfg.TopicMetricsRaw,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("kafka consumer failed")
	}
	consumer.Run(ctx, processor.Handle)
	defer consumer.Close()

	go metrics.Serve(ctx, cfg.MetricsAddr, logger)
	go pruneLoop(ctx, st, cfg, logger)
	go processing.WatchActiveAlerts(ctx, st, time.Minute, logger)

	logger.Info().Msg("processing service started")
	<-ctx.Done()
	logger.Info().Msg("processing service stopping")
}

// pruneLoop trims history past the configured retention.
func pruneLoop(ctx context.Context, st *store.Store, cfg *config.Config, logger zerolog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if n, err := st.PruneMetrics(ctx, now.AddDate(0, 0, -cfg.MetricRetentionDays)); err != nil {
				logger.Warn().Err(err).Msg("metric retention sweep failed")
			} else if n > 0 {
				logger.Info().Int64("rows", n).Msg("metric history pruned")
			}
			if n, err := st.PruneAlerts(ctx, now.AddDate(0, 0, -cfg.AlertRetentionDays)); err != nil {
				logger.Warn().Err(err).Msg("alert retention sweep failed")
			} else if n > 0 {
				logger.Info().Int64("rows", n).Msg("alert history pruned")
			}
		}
	}
}
