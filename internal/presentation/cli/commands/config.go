package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jbctechsolutions/projectgate/internal/infrastructure/config"
	"github.com/jbctechsolutions/projectgate/internal/presentation/cli/output"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration pgate would run with: the config file merged
over the built-in defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(globalFlags.ConfigFile)
			if err != nil {
				return err
			}
			formatter := newFormatter()
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = formatter.Write(data)
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(newFormatter(), globalFlags.ConfigFile, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

func runConfigInit(formatter *output.Formatter, path string, force bool) error {
	loader, err := config.NewLoader("")
	if err != nil {
		return err
	}
	if path == "" {
		path = loader.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := loader.Save(config.NewDefaultConfig(), path); err != nil {
		return err
	}
	return formatter.Success("Wrote %s", path)
}
