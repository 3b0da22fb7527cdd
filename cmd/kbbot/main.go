package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"kbbot/internal/bootstrap"
	"kbbot/internal/config"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	logLevel   string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "kbbot",
		Short: "kbbot: answers Slack direct messages from a knowledge base",
		Long: `kbbot receives Slack Events API callbacks and replies to direct messages
with the answer found by the configured lookup backend.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if logLevel != "" {
				logger = bootstrap.NewLogger(os.Stderr, logLevel, "text")
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.kbbot/config.json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override general.logLevel")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(lambdaCmd())
	root.AddCommand(kbCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

// resolveConfigPath returns the config path from --config, $KBBOT_CONFIG or
// the default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv(config.EnvConfigPath); p != "" {
		return p
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config and rebuilds the logger from it unless
// --log-level was given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := bootstrap.LoadConfig(cmd.Context(), resolveConfigPath(), logger)
	if err != nil {
		return nil, err
	}
	level := cfg.General.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger = bootstrap.NewLogger(os.Stderr, level, cfg.General.LogFormat)
	return cfg, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "knowledge_db", cfg.Knowledge.DBPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s and %s (or edit %s), then add documents with 'kbbot kb add'.\n",
				config.EnvBotToken, config.EnvSigningSecret, cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. lookup.backend)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. lookup.backend http)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			for _, p := range config.ListPaths(sanitized) {
				val, _ := config.GetByPath(sanitized, p)
				data, _ := json.Marshal(val)
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", p, data)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kbbot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kbbot %s\n", version)
		},
	}
}
