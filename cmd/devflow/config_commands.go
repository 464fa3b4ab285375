package main

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"devflow/internal/config"
	"devflow/internal/fileutil"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		path   string
		global bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample devflow.toml for this repository",
		Long:        "Write a sample configuration to devflow.toml at the repository root, or to the user config file with --global.",
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := configInitTarget(path, global)
			if err != nil {
				return err
			}
			if !force {
				created, err := fileutil.EnsureFile(target, []byte(config.SampleConfig()))
				if err != nil {
					return fmt.Errorf("write sample config: %w", err)
				}
				if !created {
					return fmt.Errorf("%s already exists; pass --force to replace it", target)
				}
			} else if err := config.CreateSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "", "Write to this path instead of the repository root")
	cmd.Flags().BoolVar(&global, "global", false, "Write the per-user configuration file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing file")
	cmd.MarkFlagsMutuallyExclusive("path", "global")
	return cmd
}

func configInitTarget(path string, global bool) (string, error) {
	switch {
	case strings.TrimSpace(path) != "":
		return config.ExpandPath(strings.TrimSpace(path))
	case global:
		return config.DefaultConfigPath()
	default:
		return config.ProjectConfigPath()
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if !ctx.configExists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintf(out, "State file: %s\n", cfg.Paths.StateFile)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, err := toml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", ctx.configPath)
			_, err = out.Write(data)
			return err
		},
	}
}
