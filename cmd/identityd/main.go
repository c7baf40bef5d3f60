// Command identityd serves the goIdentity HTTP API.
//
// Configuration comes from the environment (see serverConfig) plus an
// optional YAML file enabling external providers:
//
//	ISSUER_URL=https://id.example.com \
//	REDIS_ADDR=localhost:6379 \
//	IDENTITY_PROVIDERS_FILE=providers.yaml \
//	identityd
//
// Signing keys are created by identity-rotate; identityd only reads them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/directory"
	"github.com/MrEthical07/goIdentity/directory/redisstore"
	"github.com/MrEthical07/goIdentity/directory/sqlitestore"
	"github.com/MrEthical07/goIdentity/httpapi"
	"github.com/MrEthical07/goIdentity/keys/redisring"
	"github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("identityd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	store, closeStore, err := openDirectory(cfg, rdb)
	if err != nil {
		return err
	}
	defer closeStore()

	var pf *providersFile
	if cfg.ProvidersFile != "" {
		pf, err = loadProvidersFile(cfg.ProvidersFile)
		if err != nil {
			return err
		}
	}
	providers, err := pf.registry()
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}

	ring := redisring.New(rdb, cfg.KeyPrefix)
	b := goIdentity.New().
		WithConfig(cfg.engineConfig()).
		WithDirectory(store).
		WithProviders(providers).
		WithLogger(logger)
	if cfg.JWKSURL != "" {
		b = b.WithKeys(ring, nil)
	} else {
		b = b.WithKeys(ring, ring)
	}
	if cfg.AuditLog {
		b = b.WithAuditSink(goIdentity.NewLogSink(logger.With(slog.String("stream", "audit"))))
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Engine:    engine,
			Documents: ring,
			Metrics:   prometheus.NewPrometheusExporter(engine).Handler(),
			Logger:    logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identityd listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("issuer", engine.Issuer()),
			slog.Any("providers", engine.Providers()),
			slog.String("directory", cfg.DirectoryBackend),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDirectory(cfg serverConfig, rdb redis.UniversalClient) (directory.Store, func(), error) {
	if cfg.DirectoryBackend == "sqlite" {
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite directory: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}
	return redisstore.New(rdb, cfg.KeyPrefix), func() {}, nil
}
