package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ReOpsIL/KAIX/internal/config"
)

// rootFlags holds the persistent flags every subcommand shares.
// Grounded on cklxx-elephant.ai/cmd/cobra_cli.go's CLI struct +
// rootCmd.PersistentFlags() pattern, trimmed to the two flags
// SPEC_FULL.md §6 actually calls for (--workdir, --log-level).
type rootFlags struct {
	workdir  string
	logLevel string
}

// newRootCommand builds the kaix root command. With no subcommand it
// starts the interactive REPL (spec.md §6's line-oriented slash-command
// surface); with a subcommand it performs that one operation and exits.
func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "kaix",
		Short: "Agentic planning coordinator for terminal coding workflows",
		Long: `kaix runs an Agentic Planning Coordinator: a single-writer loop that
turns user prompts into a plan/task graph, drives each task through a
refine, execute, analyze cycle against a pluggable model provider, and
adaptively decomposes tasks that keep failing.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.workdir, "workdir", ".", "project root kaix operates against")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level (trace|debug|info|warn|error)")

	root.AddCommand(newInitCommand(flags))
	root.AddCommand(newStatusCommand(flags))
	root.AddCommand(newProviderCommand(flags))

	return root
}

// newInitCommand writes a fresh override config file for the workdir,
// the way `kaix init` is described in SPEC_FULL.md §6's subcommand list.
func newInitCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default .kaix.yaml for the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.Workdir = flags.workdir
			path := config.DefaultOverridePath(flags.workdir)
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

// newStatusCommand loads configuration and reports where it came from,
// without starting the coordinator loop.
func newStatusCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the resolved configuration and its sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, meta, err := config.Load(flags.workdir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workdir:          %s\n", cfg.Workdir)
			fmt.Fprintf(out, "log level:        %s\n", cfg.LogLevel)
			fmt.Fprintf(out, "active provider:  %s\n", cfg.ActiveProvider)
			fmt.Fprintf(out, "base file:        %s (used=%v)\n", meta.BaseFile, meta.BaseFileUsed)
			fmt.Fprintf(out, "override file:    %s (used=%v)\n", meta.OverrideFile, meta.OverrideFileUsed)
			fmt.Fprintf(out, "loaded at:        %s\n", meta.LoadedAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
}

// newProviderCommand implements `kaix provider list|add|remove|set`
// against the project's override config file, the way
// cklxx-elephant.ai/cmd/cobra_cli.go's `config provider`/`config
// providers` subcommands manage alex's provider selection.
func newProviderCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage configured model providers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(flags.workdir)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.Providers))
			for name := range cfg.Providers {
				names = append(names, name)
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				p := cfg.Providers[name]
				marker := "  "
				if name == cfg.ActiveProvider {
					marker = "* "
				}
				fmt.Fprintf(out, "%s%s\tmodel=%s\tapi_key_env_var=%s\n", marker, name, p.Model, p.APIKeyEnvVar)
			}
			return nil
		},
	})

	addCmd := &cobra.Command{
		Use:   "add <name> <model>",
		Short: "Add or replace a provider entry",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(flags.workdir)
			if err != nil {
				return err
			}
			name := args[0]
			var model string
			if len(args) > 1 {
				model = args[1]
			}
			baseURL, _ := cmd.Flags().GetString("base-url")
			apiKeyEnvVar, _ := cmd.Flags().GetString("api-key-env-var")
			if apiKeyEnvVar == "" {
				apiKeyEnvVar = "KAIX_API_KEY"
			}
			if cfg.Providers == nil {
				cfg.Providers = map[string]config.ProviderConfig{}
			}
			cfg.Providers[name] = config.ProviderConfig{
				Name:         name,
				Model:        model,
				BaseURL:      baseURL,
				APIKeyEnvVar: apiKeyEnvVar,
			}
			return config.Save(config.DefaultOverridePath(flags.workdir), cfg)
		},
	}
	addCmd.Flags().String("base-url", "", "provider API base URL")
	addCmd.Flags().String("api-key-env-var", "", "environment variable holding the provider's API key")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a provider entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(flags.workdir)
			if err != nil {
				return err
			}
			name := args[0]
			if _, ok := cfg.Providers[name]; !ok {
				return fmt.Errorf("provider %q is not configured", name)
			}
			delete(cfg.Providers, name)
			if cfg.ActiveProvider == name {
				cfg.ActiveProvider = ""
			}
			return config.Save(config.DefaultOverridePath(flags.workdir), cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name>",
		Short: "Select the active provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(flags.workdir)
			if err != nil {
				return err
			}
			name := args[0]
			if _, ok := cfg.Providers[name]; !ok {
				return fmt.Errorf("provider %q is not configured; add it first", name)
			}
			cfg.ActiveProvider = name
			return config.Save(config.DefaultOverridePath(flags.workdir), cfg)
		},
	})

	return cmd
}
