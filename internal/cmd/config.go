package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/crew/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify crew configuration",
	Long: `View or modify crew configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  crew config set ownership.mode strict
  crew config set quality_gate.pass_threshold 85
  crew config set quality_gate.review_provider anthropic
  crew config set throttle.max_window 32
  crew config set spec.path ~/work/checkout/spec.yaml

Run 'crew config show' to list every key. The value is validated before
the file is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/crew/config.yaml with the most common options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "# Config file: (none - using defaults)\n")
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	value := args[1]

	if !slices.Contains(viper.AllKeys(), key) {
		return fmt.Errorf("unknown configuration key: %s\nRun 'crew config show' to see valid keys", key)
	}

	typedValue, err := parseConfigValue(key, viper.Get(key), value)
	if err != nil {
		return err
	}

	// Validate before touching the file
	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

// parseConfigValue converts value to the type of the key's current value.
func parseConfigValue(key string, current any, value string) (any, error) {
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case int, int64:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected number", key)
		}
		return f, nil
	case []string, []any:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	case map[string]any:
		return nil, fmt.Errorf("%s is a section; set one of its keys instead", key)
	default:
		return value, nil
	}
}

const defaultConfigTemplate = `# crew configuration
# Every key can also be set with a CREW_ environment variable,
# e.g. CREW_OWNERSHIP_MODE=strict.

logging:
  enabled: true
  # debug, info, warn or error
  level: info

# Per-teammate, per-tool admission control
throttle:
  initial_width: 2
  ssthresh: 8
  max_window: 16
  window_ms: 60000
  backoff_cooldown_ms: 5000
  max_backoffs: 3

# File ownership: warn reports conflicting writes, strict blocks them
ownership:
  mode: warn
  exempt_patterns:
    - "**/package-lock.json"
    - "**/pnpm-lock.yaml"
    - "**/yarn.lock"
    - "**/go.sum"

quality_gate:
  enabled: true
  pass_threshold: 75
  max_review_cycles: 3
  # anthropic, openai or moonshot
  review_provider: anthropic

local_checks:
  type_check_cmd: ["npx", "tsc", "--noEmit"]
  test_cmd: ["npx", "vitest", "run", "--reporter=json", "--outputFile=.crew/vitest-report.json"]
  report_path: .crew/vitest-report.json
  cache_enabled: true

review:
  max_parallel_reviews: 2

audit:
  enabled: true

# Spec-driven development
spec:
  # path: ./spec.yaml
  # dri_path: ./owners.yaml
  watch: true
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'crew config set' to modify values", configFile)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize crew's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/crew/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_OWNERSHIP_MODE)\n", config.EnvPrefix, config.EnvPrefix)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	s := newStyles(out)
	errs := cfg.Validate()
	if len(errs) == 0 {
		fmt.Fprintf(out, "%s configuration is valid\n", s.pass.Render("OK"))
		return nil
	}
	for _, e := range errs {
		fmt.Fprintf(out, "%s %s\n", s.fail.Render("✗"), e.Error())
	}
	return fmt.Errorf("%d configuration error(s)", len(errs))
}
