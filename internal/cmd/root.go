package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/crew/internal/config"
	"github.com/Iron-Ham/crew/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "crew",
	Short: "Coordination core for teams of coding agents",
	Long: `crew coordinates a lead agent and its teammates working on one codebase:
task and message routing, per-tool throttling, file ownership, liveness
tracking and a multi-stage quality gate that reviews work before a task
can complete.

Run 'crew serve' to expose the core to a session layer over MCP.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/crew/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/crew")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., CREW_QUALITY_GATE_PASS_THRESHOLD for quality_gate.pass_threshold
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig returns the validated configuration. Unlike config.Get it
// reports invalid settings instead of falling back to defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the file logger configured in the logging section.
// The returned close function is never nil.
func newLogger(cfg *config.Config) (*logging.Logger, func(), error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), func() {}, nil
	}
	l, err := logging.NewLogger(cfg.Logging.LogDir(), cfg.Logging.Level, cfg.Logging.Rotation())
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}
