// Command callagent runs the phone ordering agent: a telephony webhook and
// media-stream endpoint bridged to a realtime speech model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Nitesh0626/callingAgent-backend/internal/app"
	"github.com/Nitesh0626/callingAgent-backend/internal/config"
	"github.com/Nitesh0626/callingAgent-backend/internal/health"
	"github.com/Nitesh0626/callingAgent-backend/internal/observe"
	"github.com/Nitesh0626/callingAgent-backend/internal/order"
	"github.com/Nitesh0626/callingAgent-backend/internal/server"
	"github.com/Nitesh0626/callingAgent-backend/pkg/realtime/openai"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yml", "path to the YAML configuration file")
	flag.Parse()

	// Credentials live in .env during local development; missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "callagent: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "callagent: %v\n", err)
		}
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("callagent starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"store_driver", cfg.Store.Driver,
	)

	if cfg.Model.APIKey == "" {
		slog.Error("no model API key configured; set model.api_key or OPENAI_API_KEY")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "callagent",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// Order store.
	store, storeCheck, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open order store", "err", err)
		return 1
	}
	defer closeStore()

	// Realtime model provider.
	var provOpts []openai.Option
	if cfg.Model.Model != "" {
		provOpts = append(provOpts, openai.WithModel(cfg.Model.Model))
	}
	if cfg.Model.BaseURL != "" {
		provOpts = append(provOpts, openai.WithBaseURL(cfg.Model.BaseURL))
	}
	provider := openai.New(cfg.Model.APIKey, provOpts...)

	// HTTP surface.
	registry := app.NewRegistry()
	srv := server.New(cfg, provider, store, registry, server.WithLogger(logger))

	mux := http.NewServeMux()
	srv.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		health.Checker{Name: "store", Check: storeCheck},
		health.Checker{Name: "model", Check: func(context.Context) error {
			if cfg.Model.APIKey == "" {
				return errors.New("no API key configured")
			}
			return nil
		}},
	).Register(mux)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready", "addr", cfg.Server.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	}

	// Graceful shutdown: stop accepting calls, hang up active ones, drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	registry.CloseAll()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildStore opens the configured order store and returns it with a
// readiness check and a close function.
func buildStore(ctx context.Context, cfg *config.Config) (order.Store, func(context.Context) error, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := order.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate schema: %w", err)
		}
		check := func(ctx context.Context) error { return pool.Ping(ctx) }
		return store, check, pool.Close, nil

	default:
		log, err := order.OpenFileLog(cfg.Store.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		check := func(ctx context.Context) error {
			_, err := log.List(ctx)
			return err
		}
		return log, check, func() { _ = log.Close() }, nil
	}
}
