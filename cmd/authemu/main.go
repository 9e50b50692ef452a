// Command authemu serves the identity emulator over HTTP.
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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authemu"
	promexport "github.com/MrEthical07/authemu/metrics/export/prometheus"
	"github.com/MrEthical07/authemu/notify"
	"github.com/MrEthical07/authemu/transport/httpapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "authemu: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier, closeNotifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	engine, err := authemu.New().
		WithConfig(cfg.engineConfig()).
		WithLogger(logger).
		WithNotifier(notifier).
		WithEventSink(buildEventSink(cfg, notifier, logger)).
		WithMetricsEnabled(cfg.Metrics).
		WithLatencyHistograms(cfg.LatencyHistograms).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	router := httpapi.NewRouter(engine, httpapi.Options{Logger: logger, AllowedOrigins: cfg.CORSOrigins})
	if cfg.Metrics {
		router.Method(http.MethodGet, "/metrics", promexport.NewExporter(engine).Handler())
	}

	srv := &http.Server{
		Addr:              cfg.addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("authemu listening",
		zap.String("addr", srv.Addr),
		zap.String("project", cfg.ProjectID),
		zap.Bool("metrics", cfg.Metrics),
		zap.Bool("events", cfg.Events),
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}
	return nil
}

// buildNotifier always logs deliveries and also pushes them to Redis when
// AUTHEMU_REDIS_URL is set.
func buildNotifier(ctx context.Context, cfg serverConfig, logger *zap.Logger) (notify.Notifier, func(), error) {
	console := notify.NewLogNotifier(logger)
	if cfg.RedisURL == "" {
		return console, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("redis notifier enabled", zap.String("addr", opts.Addr))

	rn := notify.NewRedisNotifier(client, cfg.RedisList, cfg.RedisChannel)
	return notify.Fanout{console, rn}, func() { _ = client.Close() }, nil
}

// buildEventSink publishes operation events through the Redis notifier when
// one is configured and logs them otherwise. It returns nil, which disables
// events, unless AUTHEMU_EVENTS is set.
func buildEventSink(cfg serverConfig, notifier notify.Notifier, logger *zap.Logger) authemu.EventSink {
	if !cfg.Events {
		return nil
	}
	if fan, ok := notifier.(notify.Fanout); ok {
		for _, n := range fan {
			if rn, ok := n.(*notify.RedisNotifier); ok {
				return authemu.NewNotifyEventSink(rn, logger)
			}
		}
	}
	return authemu.NewLogEventSink(logger)
}
