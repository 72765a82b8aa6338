package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/memoryd/internal/crypto"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memstore"
)

var reencryptBatchSize int

func init() {
	reencryptCmd.Flags().IntVar(&reencryptBatchSize, "batch-size", 200, "rows per re-encryption batch")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete chunks whose TTL has expired",
	Long: `Delete every chunk whose expires_at has passed, across all tenants.

Runs with the row policy bypassed, so the invocation is logged.

Examples:
  memctl sweep --config /etc/memoryd/config.yaml`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	maint, closeFn, err := buildMaintenance(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	swept, err := maint.SweepExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("swept %d expired chunks\n", swept)
	return nil
}

var reencryptCmd = &cobra.Command{
	Use:   "reencrypt",
	Short: "Re-seal chunks under the primary key after a rotation",
	Long: `Walk every chunk and re-encrypt any payload that only opens under
the previous key, so the previous key can be retired.

Chunks that open under neither key are reported by id and left untouched;
they need operator attention, not silent deletion.

Examples:
  memctl reencrypt --config /etc/memoryd/config.yaml
  memctl reencrypt --batch-size 500`,
	RunE: runReencrypt,
}

func runReencrypt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	maint, closeFn, err := buildMaintenance(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := maint.ReencryptAll(ctx, reencryptBatchSize)
	if err != nil {
		return err
	}

	fmt.Printf("scanned %d chunks, re-encrypted %d\n", report.Scanned, report.Reencrypted)
	if len(report.Unrecoverable) > 0 {
		fmt.Printf("%d chunks failed to open under any configured key:\n", len(report.Unrecoverable))
		for _, id := range report.Unrecoverable {
			fmt.Printf("  %s\n", id)
		}
		return fmt.Errorf("%d unrecoverable chunks", len(report.Unrecoverable))
	}
	return nil
}

// buildMaintenance wires the BYPASSRLS pool, keyring, and logger shared by
// the sweep and reencrypt commands.
func buildMaintenance(ctx context.Context) (*memstore.Maintenance, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	var primary, previous = cfg.Crypto.DataKey, cfg.Crypto.PreviousKey
	if cfg.Crypto.KeyFile != "" {
		primary, previous, err = crypto.LoadKeyFile(cfg.Crypto.KeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading key file: %w", err)
		}
	}
	keys, err := crypto.NewKeyring(primary, previous)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing keyring: %w", err)
	}
	envelope, err := crypto.NewEnvelope(keys)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing envelope: %w", err)
	}

	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		pool.Close()
		_ = logger.Sync()
	}
	return memstore.NewMaintenance(pool, envelope, logger), closeFn, nil
}
