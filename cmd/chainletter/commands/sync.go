package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/chainletter/chainletter/config"
	"github.com/chainletter/chainletter/logger"
)

// SyncCmd syncs one conversation from the ledger
var SyncCmd = &cobra.Command{
	Use:   "sync <partner>",
	Short: "Sync a conversation from the ledger",
	Long: `Pull new ledger operations for the conversation with <partner>,
persist the discovered messages, and advance the sync cursor.

With --watch the sync repeats on an interval until interrupted, reloading
configuration when the config file changes on disk.

Examples:
  chainletter sync bob               # One sync pass
  chainletter sync bob --watch       # Keep syncing every 30s
  chainletter sync bob --watch -i 10 # Every 10 seconds`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		partner := args[0]
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetInt("interval")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if !watch {
			return syncOnce(cmd.Context(), a, partner)
		}
		return syncWatch(a, partner, time.Duration(interval)*time.Second)
	},
}

func init() {
	SyncCmd.Flags().Bool("watch", false, "Keep syncing on an interval until interrupted")
	SyncCmd.Flags().IntP("interval", "i", 30, "Sync interval in seconds (with --watch)")
}

func syncOnce(ctx context.Context, a *app, partner string) error {
	spinner, _ := pterm.DefaultSpinner.Start("Syncing conversation with " + partner + "...")

	result, err := a.engine.SyncConversation(ctx, partner)
	if err != nil {
		spinner.Fail("Sync failed")
		return err
	}

	// Repair passes run opportunistically after every sync
	repairs, err := a.reconciler.Run()
	if err != nil {
		logger.Warnw("Reconciliation failed", "error", err)
	}

	spinner.Success("Sync complete")
	pterm.Printf("  New messages: %d\n", result.NewMessages)
	if len(result.JoinRequests) > 0 {
		pterm.Printf("  Join requests: %d\n", len(result.JoinRequests))
		for _, jr := range result.JoinRequests {
			pterm.Printf("    %s wants to join %s\n", jr.Account, jr.GroupID)
		}
	}
	if repairs != nil && repairs.Repaired+repairs.Failed+repairs.Confirmed > 0 {
		pterm.Printf("  Repairs: %d rewritten, %d orphans resolved\n",
			repairs.Repaired, repairs.Failed+repairs.Confirmed)
	}
	return nil
}

func syncWatch(a *app, partner string, interval time.Duration) error {
	watcher, err := config.NewWatcher(config.UserConfigPath())
	if err != nil {
		logger.Warnw("Config watching unavailable", "error", err)
	} else {
		watcher.OnReload(func(cfg *config.Config) error {
			logger.Infow("Configuration reloaded", "path", config.UserConfigPath())
			return nil
		})
		watcher.Start()
		defer watcher.Stop()
	}

	pterm.Info.Printf("Watching conversation with %s (every %v, Ctrl+C to stop)\n", partner, interval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := syncOnce(context.Background(), a, partner); err != nil {
			pterm.Error.Printf("Sync failed: %v\n", err)
		}
		select {
		case <-sigChan:
			pterm.Println()
			pterm.Info.Println("Stopped")
			return nil
		case <-ticker.C:
		}
	}
}
