package main

import (
	"github.com/spf13/cobra"

	"github.com/erazemk/tovor/internal/config"
)

// commandContext lazily loads the configuration shared by subcommands.
type commandContext struct {
	configPath *string
	cfg        *config.Config
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(*c.configPath)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// open loads the config and opens the database.
func (c *commandContext) open() (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return openApp(cfg)
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configPath: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "tovor",
		Short:         "Guided cargo list collection and spreadsheet generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default: ./"+config.DefaultConfigFile+" if present)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newInviteCommand(ctx))
	rootCmd.AddCommand(newInvitesCommand(ctx))
	rootCmd.AddCommand(newUsersCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))
	rootCmd.AddCommand(newArchiveCommand(ctx))

	return rootCmd
}
