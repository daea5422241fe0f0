// The ingestion service accepts metric submissions over HTTP, validates
// them, and publishes the resulting events onto the raw-metrics topic.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/bus"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/config"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/ingest"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/logging"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

func main() {
	bootLogger := logging.New("ingestion", "info", "json")
	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("configuration failed")
	}
	logger := logging.New("ingestion", cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producer, err := bus.NewProducer(cfg.KafkaBrokers, cfg.TopicMetricsRaw, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("kafka producer failed")
	}
	defer producer.Close()

	validator := ingest.NewValidator(cfg.MaxMetricValue, cfg.AllowedEnvironments)
	handler := ingest.NewHandler(validator, bus.NewMetricPublisher(producer),
		cfg.IngestRatePerSecond, cfg.IngestBurst, logger)

	go metrics.Serve(ctx, cfg.MetricsAddr, logger)

	srv := &http.Server{
		Addr:              cfg.IngestionAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.IngestionAddr).Msg("ingestion service started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("ingestion service stopped")
}
