package commands

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/chainletter/chainletter/store"
)

// GroupsCmd manages group membership discovery
var GroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Discover and list group memberships",
	Long: `Group membership has no central directory: it is reconstructed by
scanning the member graph implied by ledger operations, keeping the highest
version of every membership snapshot.

Examples:
  chainletter groups resolve   # Run full membership discovery
  chainletter groups ls        # List known groups from the local cache`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var groupsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run membership discovery against the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		spinner, _ := pterm.DefaultSpinner.Start("Discovering group memberships...")
		resolved, err := a.resolver.Resolve(cmd.Context())
		if err != nil {
			spinner.Fail("Discovery failed")
			return err
		}
		spinner.Success("Discovery complete")

		if len(resolved) == 0 {
			pterm.Info.Println("No group memberships found")
			return nil
		}
		return printGroupTable(resolved)
	},
}

var groupsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List known groups from the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		known, err := a.store.Groups()
		if err != nil {
			return err
		}
		if len(known) == 0 {
			pterm.Info.Println("No groups cached; run 'chainletter groups resolve'")
			return nil
		}
		return printGroupTable(known)
	},
}

func printGroupTable(groups []*store.Group) error {
	rows := pterm.TableData{{"Group", "Name", "Version", "Members"}}
	for _, g := range groups {
		rows = append(rows, []string{
			g.GroupID,
			g.Name,
			strconv.FormatInt(g.Version, 10),
			strings.Join(g.Members, ", "),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func init() {
	GroupsCmd.AddCommand(groupsResolveCmd)
	GroupsCmd.AddCommand(groupsLsCmd)
}
