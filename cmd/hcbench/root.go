package main

import (
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/hybridcache/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hcbench",
		Short:         "Exercise a two-tier read-through cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(), newConfigCmd())
	return root
}

// loadConfig reads --config when set and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if cmd.Flags().Lookup("redis") != nil && cmd.Flags().Changed("redis") {
		addr, _ := cmd.Flags().GetString("redis")
		cfg.Redis.Enabled = addr != ""
		cfg.Redis.Addr = addr
	}
	if cmd.Flags().Lookup("local") != nil && cmd.Flags().Changed("local") {
		cfg.Local.Kind, _ = cmd.Flags().GetString("local")
	}
	return cfg, cfg.Validate()
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().String("redis", "", "redis address; empty runs local-only")
	cmd.Flags().String("local", "", "local tier: memory, ristretto or bigcache")
	return cmd
}
