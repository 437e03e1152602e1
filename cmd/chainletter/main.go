package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainletter/chainletter/cmd/chainletter/commands"
	"github.com/chainletter/chainletter/logger"
)

var rootCmd = &cobra.Command{
	Use:   "chainletter",
	Short: "chainletter - ledger-backed private messaging sync engine",
	Long: `chainletter reconstructs private and group conversations from an
append-only transaction ledger. Messages live on-chain as encrypted transfer
memos; chainletter scans account history, resolves group membership across
the member graph, schedules rate-limited decryption, and keeps a durable
local cache that survives crashes and stale cursors.

Available commands:
  sync      - Sync a conversation from the ledger
  groups    - Discover and list group memberships
  status    - Show local cache status
  reconcile - Repair corrupted or orphaned local records
  config    - Manage configuration
  version   - Show version information

Examples:
  chainletter config init --account alice   # Write a starter config
  chainletter sync bob                      # Sync the conversation with bob
  chainletter groups resolve                # Run membership discovery
  chainletter status                        # Show cached state`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")

	rootCmd.AddCommand(commands.SyncCmd)
	rootCmd.AddCommand(commands.GroupsCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.ReconcileCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
