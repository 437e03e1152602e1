package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// ReconcileCmd runs the repair passes on demand
var ReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair corrupted or orphaned local records",
	Long: `Run both repair passes against the local cache:

- rewrite messages whose content is raw ciphertext back to the decrypt
  placeholder
- resolve group messages stuck in sending state to a terminal status

Both passes are idempotent; they also run automatically after every sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.reconciler.Run()
		if err != nil {
			return err
		}

		if result.Repaired+result.Failed+result.Confirmed == 0 {
			pterm.Success.Println("Nothing to repair")
			return nil
		}
		pterm.Success.Println("Reconciliation complete")
		pterm.Printf("  Corrupted messages rewritten: %d\n", result.Repaired)
		pterm.Printf("  Orphans resolved as failed:   %d\n", result.Failed)
		pterm.Printf("  Orphans resolved as sent:     %d\n", result.Confirmed)
		return nil
	},
}
