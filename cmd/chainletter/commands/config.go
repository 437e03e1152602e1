package commands

import (
	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/chainletter/chainletter/config"
)

// ConfigCmd manages chainletter configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Configuration lives at ~/.chainletter/config.toml, with optional
per-project overrides in a chainletter.toml found by walking up from the
working directory. The CHAINLETTER_ACCOUNT and CHAINLETTER_DATA_DIR
environment variables override both.

Examples:
  chainletter config init --account alice  # Write a starter config
  chainletter config show                  # Print the effective config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		account, _ := cmd.Flags().GetString("account")
		path := config.UserConfigPath()

		if err := config.WriteStarter(path, account); err != nil {
			return err
		}
		pterm.Success.Printf("Wrote %s\n", path)
		if account == "" {
			pterm.Info.Println("Set account.name before syncing")
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		pterm.Println(string(out))
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("account", "", "Ledger account name to configure")
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configShowCmd)
}
