// The streaming service tails the metric and alert topics from the latest
// offset and fans them out to dashboard clients over SSE.
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
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/cache"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/config"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/logging"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/store"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/stream"
)

func main() {
	bootLogger := logging.New("streaming", "info", "json")
	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("configuration failed")
	}
	logger := logging.New("streaming", cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheClient := cache.New(cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Timeout:  cfg.IOTimeout,
		Logger:   logger,
	})
	defer cacheClient.Close()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection failed")
	}
	defer st.Close()

	metricHub := stream.NewHub[*event.MetricEvent]("metrics")
	alertHub := stream.NewHub[*event.AlertEvent]("alerts")

	metricConsumer, err := bus.NewConsumer(bus.ConsumerConfig{
		Brokers:    cfg.KafkaBrokers,
		Group:      cfg.GroupStreamMetrics,
		Topic:      cfg.TopicMetricsRaw,
		Logger:     logger,
		FromLatest: true,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("metric consumer failed")
	}
	metricConsumer.Run(ctx, stream.MetricBridge(metricHub, logger))
	defer metricConsumer.Close()

	alertConsumer, err := bus.NewConsumer(bus.ConsumerConfig{
		Brokers:    cfg.KafkaBrokers,
		Group:      cfg.GroupStreamAlerts,
		Topic:      cfg.TopicAlerts,
		Logger:     logger,
		FromLatest: true,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("alert consumer failed")
	}
	alertConsumer.Run(ctx, stream.AlertBridge(alertHub, logger))
	defer alertConsumer.Close()

	server := stream.NewServer(metricHub, alertHub,
		stream.NewLatestReader(cacheClient, logger), st,
		cfg.HeartbeatInterval(), cfg.BufferSize, logger)

	go metrics.Serve(ctx, cfg.MetricsAddr, logger)

	srv := &http.Server{
		Addr:              cfg.StreamingAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.StreamingAddr).Msg("streaming service started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("streaming service stopped")
}
