package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/sompi/internal/config"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// configForce overwrites an existing configuration file.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and initialize sompi configuration settings.`,
}

// configInitCmd writes the default configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.sompi/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.

Example:
  sompi config init
  sompi config init --force`,
	RunE: runConfigInit,
}

// configShowCmd shows the effective configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after environment and flag overrides.

Example:
  sompi config show
  sompi config show -o json`,
	RunE: runConfigShow,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configCmd.GroupID = groupSetup
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	configPath := config.Path(cc.Cfg.HomeDir())

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return sompierr.WithSuggestion(
			sompierr.WithDetails(sompierr.ErrGeneral, map[string]string{"path": configPath}),
			"configuration already exists. Use --force to overwrite.",
		)
	}

	defaults := config.Defaults()
	defaults.Home = cc.Cfg.Home
	if err := config.Save(defaults, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - network.name: mainnet, testnet, devnet or simnet")
	outln(w, "  - network.api_url: Your Kaspa REST endpoint (optional)")
	outln(w, "  - discovery.gap_limit: Empty addresses that end a scan")
	outln(w, "  - storage.backend: file or badger")
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	if cc.Fmt.IsJSON() {
		return cc.Fmt.JSON(cc.Cfg)
	}

	data, err := yaml.Marshal(cc.Cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
