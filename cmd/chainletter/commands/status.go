package commands

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// StatusCmd shows the local cache status
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local cache status",
	Long: `Summarize the local state for the configured account: cached
conversations with unread counts, known groups, and sync cursor positions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		pterm.DefaultHeader.Printf("chainletter - %s", a.store.Account())
		pterm.Println()

		convs, err := a.store.Conversations()
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			pterm.Info.Println("No conversations cached")
		} else {
			rows := pterm.TableData{{"Partner", "Last message", "Unread", "Last activity"}}
			for _, c := range convs {
				last := c.LastMessage
				if len(last) > 40 {
					last = last[:37] + "..."
				}
				rows = append(rows, []string{
					c.Partner,
					last,
					strconv.Itoa(c.UnreadCount),
					c.LastTimestamp.Format("2006-01-02 15:04"),
				})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
				return err
			}
		}

		known, err := a.store.Groups()
		if err != nil {
			return err
		}
		left, err := a.store.LeftGroups()
		if err != nil {
			return err
		}
		pterm.Println()
		pterm.Printf("Groups: %d known, %d left\n", len(known), len(left))
		return nil
	},
}
