package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"boothbook/internal/api"
	"boothbook/internal/app"
	"boothbook/internal/config"
	"boothbook/internal/database"
	"boothbook/internal/logging"
	"boothbook/internal/metrics"
	"boothbook/internal/reminder"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, &logger, app.Options{})
	if err != nil {
		logger.Error().Err(err).Msg("init application")
		return err
	}
	defer func() { _ = a.Close() }()

	if a.Sheets != nil {
		if err := a.Sheets.WarmUpCache(ctx); err != nil {
			logger.Warn().Err(err).Msg("sheets cache warm-up failed")
		}
	}

	auth, err := api.NewAdminAuth(cfg.Admin, a.Store)
	if err != nil {
		return err
	}

	httpServer := api.NewHTTPServer(cfg.HTTP, api.Deps{
		Booking:   a.Booking,
		Settings:  a.Settings,
		Audit:     a.Audit,
		Schedule:  a.Schedule,
		Auth:      auth,
		Store:     a.Store,
		Reminders: a.Reminders,
		Outbox:    a.Outbox,
	}, &logger)

	var grpcServer *api.GRPCServer
	if cfg.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.GRPC, a.Booking, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	var wg sync.WaitGroup
	startBackground(ctx, &wg, a, cfg, &logger)
	startMetrics(ctx, cfg, &logger)

	err = startServers(ctx, grpcServer, httpServer, cfg, &logger)
	stop()
	wg.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// startBackground runs the notification worker, the reminder scheduler and
// outbox backups until ctx is cancelled.
func startBackground(ctx context.Context, wg *sync.WaitGroup, a *app.App, cfg *config.Config, logger *zerolog.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Worker.Start(ctx)
	}()

	if cfg.Reminder.Enabled {
		sched, err := reminder.NewScheduler(a.Reminders, cfg.Reminder.Time, a.Schedule.Location(),
			logging.Component(logger, "reminder"))
		if err != nil {
			logger.Error().Err(err).Msg("reminder scheduler disabled")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sched.Start(ctx)
			}()
		}
	}

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(a.Outbox, cfg.Backup, logging.Component(logger, "backup"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			backups.Start(ctx)
		}()
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-httpErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
