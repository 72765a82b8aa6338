// Package main implements memctl, the maintenance CLI for memoryd.
//
// memctl is the only tool that connects to the database as a role that can
// bypass row-level security. It applies schema migrations, runs the TTL
// sweep, and re-encrypts chunks after a key rotation. The serving daemon
// never has these privileges.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "Maintenance CLI for memoryd",
	Long: `memctl performs privileged maintenance against the memoryd database.

Its commands connect as the table-owner or BYPASSRLS role, which sees every
tenant's rows. That is the documented, audited exception to the row policy;
request-serving code never runs with these privileges.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to memoryd config file")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(reencryptCmd)
}
