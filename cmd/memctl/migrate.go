package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/memstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the memoryd schema and row-level security policies",
	Long: `Apply the memory_chunks schema, indexes, and row-level security
policies to the configured database.

The connection must be made as the table owner. FORCE ROW LEVEL SECURITY is
part of the schema, so after migration even the owner is bound by the
tenant policy unless the role has BYPASSRLS.

Examples:
  memctl migrate --config /etc/memoryd/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, memstore.Schema(cfg.Embeddings.Dimension)); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	fmt.Printf("schema applied (embedding dimension %d)\n", cfg.Embeddings.Dimension)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.Database.URL.Value())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
