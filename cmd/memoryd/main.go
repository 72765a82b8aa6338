// Memoryd is the tenant-isolated encrypted memory daemon.
//
// It persists per-tenant memory chunks in Postgres with row-level security,
// seals payloads with tenant-bound authenticated encryption, and serves
// similarity queries through a fail-open reranking pipeline over HTTP.
//
// Usage:
//
//	# Start with defaults plus environment overrides
//	memoryd
//
//	# Start with an explicit config file
//	memoryd -config /etc/memoryd/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/crypto"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/httpapi"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/memstore"
	"github.com/fyrsmithlabs/memoryd/internal/reranker"
	"github.com/fyrsmithlabs/memoryd/internal/telemetry"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("memoryd %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("memoryd: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logCfg := logging.NewDefaultConfig()
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting memoryd",
		zap.String("version", version),
		zap.String("commit", gitCommit))

	keys, err := buildKeyring(ctx, cfg, logger)
	if err != nil {
		return err
	}
	envelope, err := crypto.NewEnvelope(keys)
	if err != nil {
		return fmt.Errorf("initializing envelope: %w", err)
	}
	hasher, err := tenant.NewHasher(cfg.Tenant.HashKey)
	if err != nil {
		return fmt.Errorf("initializing tenant hasher: %w", err)
	}

	pool, err := connectPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	scope, err := tenant.NewScope(&tenant.PgxPool{Pool: pool}, hasher, logger)
	if err != nil {
		return fmt.Errorf("initializing tenant scope: %w", err)
	}

	store, err := memstore.NewPostgres(scope, envelope, logger, cfg.Embeddings.Dimension)
	if err != nil {
		return fmt.Errorf("initializing memory store: %w", err)
	}

	embedder, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initializing embeddings: %w", err)
	}

	var rr reranker.Reranker = reranker.Noop{}
	if cfg.Reranker.Enabled {
		rr = reranker.NewBreaker(
			reranker.NewLexical(),
			cfg.Reranker.Target.Duration(),
			cfg.Reranker.TripThreshold.Duration(),
			logger,
		)
	}
	defer func() { _ = rr.Close() }()

	svc, err := memory.NewService(
		store,
		memstore.NewDecryptor(envelope, logger),
		hasher,
		embedder,
		rr,
		cfg.Memory,
		cfg.Reranker.TopK,
		logger,
	)
	if err != nil {
		return fmt.Errorf("initializing memory service: %w", err)
	}

	srv, err := httpapi.NewServer(svc, logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown failed", zap.Error(err))
	}
	logger.Info(context.Background(), "memoryd stopped")
	return nil
}

// buildKeyring loads key material either from the config values or from a
// key file watched for rotation.
func buildKeyring(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*crypto.Keyring, error) {
	if cfg.Crypto.KeyFile != "" {
		primary, previous, err := crypto.LoadKeyFile(cfg.Crypto.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading key file: %w", err)
		}
		keys, err := crypto.NewKeyring(primary, previous)
		if err != nil {
			return nil, fmt.Errorf("initializing keyring: %w", err)
		}
		if err := keys.Watch(ctx, cfg.Crypto.KeyFile, logger); err != nil {
			return nil, fmt.Errorf("watching key file: %w", err)
		}
		return keys, nil
	}
	keys, err := crypto.NewKeyring(cfg.Crypto.DataKey, cfg.Crypto.PreviousKey)
	if err != nil {
		return nil, fmt.Errorf("initializing keyring: %w", err)
	}
	return keys, nil
}

func connectPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Value())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnectTimeout.Duration() > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout.Duration()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
