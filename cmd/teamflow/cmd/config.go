package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/teamflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage teamflow configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .teamflow/config.yaml",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, config files,
TEAMFLOW_* environment variables and flags.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false,
		"overwrite an existing config file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		path = config.ProjectConfigPath(".")
	}
	written, err := config.WriteDefaultConfig(path, configInitForce)
	if err != nil {
		return err
	}
	if !written {
		fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s (use --force to overwrite)\n", path)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	loader := config.NewLoaderWithViper(newViper()).WithConfigFile(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	settings := loader.AllSettings()
	if capab, ok := settings["capability"].(map[string]interface{}); ok {
		if token, _ := capab["token"].(string); token != "" {
			capab["token"] = "********"
		}
	}

	out := cmd.OutOrStdout()
	if file := loader.ConfigFile(); file != "" {
		fmt.Fprintf(out, "# loaded from %s\n", file)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
