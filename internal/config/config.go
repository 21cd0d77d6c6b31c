package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/crew/internal/heartbeat"
	"github.com/Iron-Ham/crew/internal/localcheck"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/ownership"
	"github.com/Iron-Ham/crew/internal/provider"
	"github.com/Iron-Ham/crew/internal/qualitygate"
	"github.com/Iron-Ham/crew/internal/throttle"
	"github.com/Iron-Ham/crew/internal/toolguard"
)

// EnvPrefix is the prefix of environment overrides, e.g. CREW_LOGGING_LEVEL.
const EnvPrefix = "CREW"

// Config represents the complete crew configuration
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Team        TeamConfig        `mapstructure:"team"`
	Throttle    ThrottleConfig    `mapstructure:"throttle"`
	Heartbeat   HeartbeatConfig   `mapstructure:"heartbeat"`
	Ownership   OwnershipConfig   `mapstructure:"ownership"`
	QualityGate QualityGateConfig `mapstructure:"quality_gate"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	LocalChecks LocalChecksConfig `mapstructure:"local_checks"`
	Review      ReviewConfig      `mapstructure:"review"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Spec        SpecConfig        `mapstructure:"spec"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is active (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level sets the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the directory holding crew.log. Empty means {config dir}/logs.
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// TeamConfig controls the coordinator
type TeamConfig struct {
	// MaxActivity caps the in-memory activity log per team (default: 1000).
	// The audit log keeps everything.
	MaxActivity int `mapstructure:"max_activity"`
}

// ThrottleConfig controls per-tool admission control
type ThrottleConfig struct {
	// InitialWidth is the starting budget per tool (default: 2)
	InitialWidth int `mapstructure:"initial_width"`
	// SSThresh is where exponential budget growth turns linear (default: 8)
	SSThresh int `mapstructure:"ssthresh"`
	// MaxWindow caps the budget (default: 16)
	MaxWindow int `mapstructure:"max_window"`
	// WindowMs is the sliding window in milliseconds (default: 60000)
	WindowMs int `mapstructure:"window_ms"`
	// BackoffCooldownMs is how long a tool is refused after a backoff (default: 5000)
	BackoffCooldownMs int `mapstructure:"backoff_cooldown_ms"`
	// MaxBackoffs hard-blocks a tool once reached (default: 3)
	MaxBackoffs int `mapstructure:"max_backoffs"`
}

// ProfileConfig overrides the stall profile of a model family
type ProfileConfig struct {
	SoftProbeMs       int `mapstructure:"soft_probe_ms"`
	ExpectedSilenceMs int `mapstructure:"expected_silence_ms"`
}

// HeartbeatConfig controls liveness tracking
type HeartbeatConfig struct {
	// UIFlushIntervalMs is how often UI batches are published (default: 30000)
	UIFlushIntervalMs int `mapstructure:"ui_flush_interval_ms"`
	// LLMSummaryIntervalMs is how often lead summaries are published (default: 120000)
	LLMSummaryIntervalMs int `mapstructure:"llm_summary_interval_ms"`
	// SignificantEventThreshold is the team-wide call count that forces an early flush (default: 5)
	SignificantEventThreshold int `mapstructure:"significant_event_threshold"`
	// ContextThreshold is the context usage fraction reported once per upward crossing (default: 0.7)
	ContextThreshold float64 `mapstructure:"context_threshold"`
	// Profiles maps a model-name substring to stall profile overrides
	Profiles map[string]ProfileConfig `mapstructure:"profiles"`
}

// OwnershipConfig controls file ownership tracking
type OwnershipConfig struct {
	// Mode is "warn" (report conflicts) or "strict" (block conflicting writes)
	Mode string `mapstructure:"mode"`
	// Root makes absolute paths under it relative. Empty means the working directory.
	Root string `mapstructure:"root"`
	// ExemptPatterns are globs of files nobody owns, e.g. lockfiles
	ExemptPatterns []string `mapstructure:"exempt_patterns"`
	// FileTools names the file-modifying tools (case-insensitive)
	FileTools []string `mapstructure:"file_tools"`
}

// StageConfig enables and weights one quality gate stage
type StageConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Weight  float64 `mapstructure:"weight"`
	Binary  bool    `mapstructure:"binary"`
}

// QualityGateConfig controls the review pipeline run on task completion
type QualityGateConfig struct {
	Enabled            bool                   `mapstructure:"enabled"`
	PassThreshold      float64                `mapstructure:"pass_threshold"`
	MaxReviewCycles    int                    `mapstructure:"max_review_cycles"`
	EnforceTDD         bool                   `mapstructure:"enforce_tdd"`
	ReviewModel        string                 `mapstructure:"review_model"`
	ReviewProvider     string                 `mapstructure:"review_provider"`
	EscalationModel    string                 `mapstructure:"escalation_model"`
	EscalationProvider string                 `mapstructure:"escalation_provider"`
	Stages             map[string]StageConfig `mapstructure:"stages"`
	BaselineAwareTests bool                   `mapstructure:"baseline_aware_tests"`
	KnownFailingTests  []string               `mapstructure:"known_failing_tests"`
	// MaxParallelStages bounds concurrent review calls within one run (default: 4)
	MaxParallelStages int `mapstructure:"max_parallel_stages"`
	// StageTimeoutSeconds bounds each review call (default: 90)
	StageTimeoutSeconds int `mapstructure:"stage_timeout_seconds"`
}

// ProvidersConfig controls model provider access
type ProvidersConfig struct {
	// Base URL overrides, e.g. for proxies. Empty means the public endpoint.
	AnthropicBaseURL string `mapstructure:"anthropic_base_url"`
	OpenAIBaseURL    string `mapstructure:"openai_base_url"`
	MoonshotBaseURL  string `mapstructure:"moonshot_base_url"`
	// Environment variable names holding credentials. Empty means the
	// conventional names (ANTHROPIC_API_KEY, OPENAI_API_KEY, MOONSHOT_API_KEY).
	AnthropicKeyEnv  string `mapstructure:"anthropic_key_env"`
	OpenAIKeyEnv     string `mapstructure:"openai_key_env"`
	OpenAIBaseURLEnv string `mapstructure:"openai_base_url_env"`
	MoonshotKeyEnv   string `mapstructure:"moonshot_key_env"`
	// TimeoutSeconds bounds each HTTP request (default: 120)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LocalChecksConfig controls the type-check and test commands
type LocalChecksConfig struct {
	TypeCheckCmd            []string `mapstructure:"type_check_cmd"`
	TestCmd                 []string `mapstructure:"test_cmd"`
	InstallCmd              []string `mapstructure:"install_cmd"`
	TypeCheckTimeoutSeconds int      `mapstructure:"type_check_timeout_seconds"`
	TestTimeoutSeconds      int      `mapstructure:"test_timeout_seconds"`
	InstallTimeoutSeconds   int      `mapstructure:"install_timeout_seconds"`
	// ReportPath is the vitest JSON report, relative to the working directory
	ReportPath string `mapstructure:"report_path"`
	// CacheEnabled stores results in SQLite keyed by content fingerprint (default: true)
	CacheEnabled bool `mapstructure:"cache_enabled"`
	// CachePath is the SQLite file. Empty means {config dir}/checks.db.
	CachePath string `mapstructure:"cache_path"`
	// CacheTTLMinutes expires cached results (default: 30)
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
}

// ReviewConfig controls review dispatch
type ReviewConfig struct {
	// MaxParallelReviews bounds concurrent gate runs across teammates (default: 2)
	MaxParallelReviews int `mapstructure:"max_parallel_reviews"`
	// SpeculativeDiffTTLSeconds is how long a pre-captured diff stays usable (default: 120)
	SpeculativeDiffTTLSeconds int `mapstructure:"speculative_diff_ttl_seconds"`
}

// AuditConfig controls the JSONL audit log
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Path is the audit file. Empty means {config dir}/audit.jsonl.
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// SpecConfig points at the spec the team works against
type SpecConfig struct {
	// Path is a YAML spec, or Markdown with YAML frontmatter. Empty disables SDD stages.
	Path string `mapstructure:"path"`
	// DRIPath is an optional YAML file of DRI assignments
	DRIPath string `mapstructure:"dri_path"`
	// Watch reloads the spec when the file changes (default: true)
	Watch bool `mapstructure:"watch"`
	// DebounceMs coalesces bursts of file events (default: 200)
	DebounceMs int `mapstructure:"debounce_ms"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	gate := qualitygate.DefaultConfig()
	stages := make(map[string]StageConfig, len(gate.Stages))
	for name, s := range gate.Stages {
		stages[string(name)] = StageConfig{Enabled: s.Enabled, Weight: s.Weight, Binary: s.Binary}
	}
	checks := localcheck.DefaultConfig()
	hb := heartbeat.DefaultConfig()
	th := throttle.DefaultConfig()

	return &Config{
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Team: TeamConfig{
			MaxActivity: 1000,
		},
		Throttle: ThrottleConfig{
			InitialWidth:      th.InitialWidth,
			SSThresh:          th.SSThresh,
			MaxWindow:         th.MaxWindow,
			WindowMs:          int(th.Window / time.Millisecond),
			BackoffCooldownMs: int(th.BackoffCooldown / time.Millisecond),
			MaxBackoffs:       th.MaxBackoffs,
		},
		Heartbeat: HeartbeatConfig{
			UIFlushIntervalMs:         int(hb.UIFlushInterval / time.Millisecond),
			LLMSummaryIntervalMs:      int(hb.LLMSummaryInterval / time.Millisecond),
			SignificantEventThreshold: hb.SignificantEventThreshold,
			ContextThreshold:          hb.ContextThreshold,
			Profiles:                  map[string]ProfileConfig{},
		},
		Ownership: OwnershipConfig{
			Mode:           string(ownership.ModeWarn),
			ExemptPatterns: []string{"**/package-lock.json", "**/pnpm-lock.yaml", "**/yarn.lock", "**/go.sum"},
			FileTools:      toolguard.DefaultFileTools,
		},
		QualityGate: QualityGateConfig{
			Enabled:             gate.Enabled,
			PassThreshold:       gate.PassThreshold,
			MaxReviewCycles:     gate.MaxReviewCycles,
			ReviewModel:         gate.ReviewModel,
			ReviewProvider:      string(gate.ReviewProvider),
			Stages:              stages,
			KnownFailingTests:   []string{},
			MaxParallelStages:   gate.MaxParallelStages,
			StageTimeoutSeconds: int(gate.StageTimeout / time.Second),
		},
		Providers: ProvidersConfig{
			TimeoutSeconds: 120,
		},
		LocalChecks: LocalChecksConfig{
			TypeCheckCmd:            checks.TypeCheckCmd,
			TestCmd:                 checks.TestCmd,
			InstallCmd:              checks.InstallCmd,
			TypeCheckTimeoutSeconds: int(checks.TypeCheckTimeout / time.Second),
			TestTimeoutSeconds:      int(checks.TestTimeout / time.Second),
			InstallTimeoutSeconds:   int(checks.InstallTimeout / time.Second),
			ReportPath:              checks.ReportPath,
			CacheEnabled:            true,
			CacheTTLMinutes:         30,
		},
		Review: ReviewConfig{
			MaxParallelReviews:        2,
			SpeculativeDiffTTLSeconds: 120,
		},
		Audit: AuditConfig{
			Enabled:    true,
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Spec: SpecConfig{
			Watch:      true,
			DebounceMs: 200,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Team defaults
	viper.SetDefault("team.max_activity", defaults.Team.MaxActivity)

	// Throttle defaults
	viper.SetDefault("throttle.initial_width", defaults.Throttle.InitialWidth)
	viper.SetDefault("throttle.ssthresh", defaults.Throttle.SSThresh)
	viper.SetDefault("throttle.max_window", defaults.Throttle.MaxWindow)
	viper.SetDefault("throttle.window_ms", defaults.Throttle.WindowMs)
	viper.SetDefault("throttle.backoff_cooldown_ms", defaults.Throttle.BackoffCooldownMs)
	viper.SetDefault("throttle.max_backoffs", defaults.Throttle.MaxBackoffs)

	// Heartbeat defaults
	viper.SetDefault("heartbeat.ui_flush_interval_ms", defaults.Heartbeat.UIFlushIntervalMs)
	viper.SetDefault("heartbeat.llm_summary_interval_ms", defaults.Heartbeat.LLMSummaryIntervalMs)
	viper.SetDefault("heartbeat.significant_event_threshold", defaults.Heartbeat.SignificantEventThreshold)
	viper.SetDefault("heartbeat.context_threshold", defaults.Heartbeat.ContextThreshold)
	viper.SetDefault("heartbeat.profiles", map[string]any{})

	// Ownership defaults
	viper.SetDefault("ownership.mode", defaults.Ownership.Mode)
	viper.SetDefault("ownership.root", defaults.Ownership.Root)
	viper.SetDefault("ownership.exempt_patterns", defaults.Ownership.ExemptPatterns)
	viper.SetDefault("ownership.file_tools", defaults.Ownership.FileTools)

	// Quality gate defaults
	viper.SetDefault("quality_gate.enabled", defaults.QualityGate.Enabled)
	viper.SetDefault("quality_gate.pass_threshold", defaults.QualityGate.PassThreshold)
	viper.SetDefault("quality_gate.max_review_cycles", defaults.QualityGate.MaxReviewCycles)
	viper.SetDefault("quality_gate.enforce_tdd", defaults.QualityGate.EnforceTDD)
	viper.SetDefault("quality_gate.review_model", defaults.QualityGate.ReviewModel)
	viper.SetDefault("quality_gate.review_provider", defaults.QualityGate.ReviewProvider)
	viper.SetDefault("quality_gate.escalation_model", defaults.QualityGate.EscalationModel)
	viper.SetDefault("quality_gate.escalation_provider", defaults.QualityGate.EscalationProvider)
	stages := make(map[string]any, len(defaults.QualityGate.Stages))
	for name, s := range defaults.QualityGate.Stages {
		stages[name] = map[string]any{"enabled": s.Enabled, "weight": s.Weight, "binary": s.Binary}
	}
	viper.SetDefault("quality_gate.stages", stages)
	viper.SetDefault("quality_gate.baseline_aware_tests", defaults.QualityGate.BaselineAwareTests)
	viper.SetDefault("quality_gate.known_failing_tests", defaults.QualityGate.KnownFailingTests)
	viper.SetDefault("quality_gate.max_parallel_stages", defaults.QualityGate.MaxParallelStages)
	viper.SetDefault("quality_gate.stage_timeout_seconds", defaults.QualityGate.StageTimeoutSeconds)

	// Provider defaults
	viper.SetDefault("providers.anthropic_base_url", defaults.Providers.AnthropicBaseURL)
	viper.SetDefault("providers.openai_base_url", defaults.Providers.OpenAIBaseURL)
	viper.SetDefault("providers.moonshot_base_url", defaults.Providers.MoonshotBaseURL)
	viper.SetDefault("providers.anthropic_key_env", defaults.Providers.AnthropicKeyEnv)
	viper.SetDefault("providers.openai_key_env", defaults.Providers.OpenAIKeyEnv)
	viper.SetDefault("providers.openai_base_url_env", defaults.Providers.OpenAIBaseURLEnv)
	viper.SetDefault("providers.moonshot_key_env", defaults.Providers.MoonshotKeyEnv)
	viper.SetDefault("providers.timeout_seconds", defaults.Providers.TimeoutSeconds)

	// Local check defaults
	viper.SetDefault("local_checks.type_check_cmd", defaults.LocalChecks.TypeCheckCmd)
	viper.SetDefault("local_checks.test_cmd", defaults.LocalChecks.TestCmd)
	viper.SetDefault("local_checks.install_cmd", defaults.LocalChecks.InstallCmd)
	viper.SetDefault("local_checks.type_check_timeout_seconds", defaults.LocalChecks.TypeCheckTimeoutSeconds)
	viper.SetDefault("local_checks.test_timeout_seconds", defaults.LocalChecks.TestTimeoutSeconds)
	viper.SetDefault("local_checks.install_timeout_seconds", defaults.LocalChecks.InstallTimeoutSeconds)
	viper.SetDefault("local_checks.report_path", defaults.LocalChecks.ReportPath)
	viper.SetDefault("local_checks.cache_enabled", defaults.LocalChecks.CacheEnabled)
	viper.SetDefault("local_checks.cache_path", defaults.LocalChecks.CachePath)
	viper.SetDefault("local_checks.cache_ttl_minutes", defaults.LocalChecks.CacheTTLMinutes)

	// Review defaults
	viper.SetDefault("review.max_parallel_reviews", defaults.Review.MaxParallelReviews)
	viper.SetDefault("review.speculative_diff_ttl_seconds", defaults.Review.SpeculativeDiffTTLSeconds)

	// Audit defaults
	viper.SetDefault("audit.enabled", defaults.Audit.Enabled)
	viper.SetDefault("audit.path", defaults.Audit.Path)
	viper.SetDefault("audit.max_size_mb", defaults.Audit.MaxSizeMB)
	viper.SetDefault("audit.max_backups", defaults.Audit.MaxBackups)

	// Spec defaults
	viper.SetDefault("spec.path", defaults.Spec.Path)
	viper.SetDefault("spec.dri_path", defaults.Spec.DRIPath)
	viper.SetDefault("spec.watch", defaults.Spec.Watch)
	viper.SetDefault("spec.debounce_ms", defaults.Spec.DebounceMs)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "crew")
	}
	// Fall back to ~/.config/crew
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crew"
	}
	return filepath.Join(home, ".config", "crew")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// expandPath resolves ~ and falls back to def under the config directory.
func expandPath(path, def string) string {
	if path == "" {
		return filepath.Join(ConfigDir(), def)
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// -----------------------------------------------------------------------------
// Component conversions
// -----------------------------------------------------------------------------

// LogDir returns the resolved log directory.
func (c *LoggingConfig) LogDir() string {
	return expandPath(c.Dir, "logs")
}

// Rotation returns the rotation settings of the log file.
func (c *LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{MaxSizeBytes: int64(c.MaxSizeMB) << 20, MaxBackups: c.MaxBackups}
}

// ThrottleConfig converts to the throttle's typed config.
func (c *Config) ThrottleConfig() throttle.Config {
	return throttle.Config{
		InitialWidth:    c.Throttle.InitialWidth,
		SSThresh:        c.Throttle.SSThresh,
		MaxWindow:       c.Throttle.MaxWindow,
		Window:          time.Duration(c.Throttle.WindowMs) * time.Millisecond,
		BackoffCooldown: time.Duration(c.Throttle.BackoffCooldownMs) * time.Millisecond,
		MaxBackoffs:     c.Throttle.MaxBackoffs,
	}
}

// GuardConfig converts to the tool guard's typed config.
func (c *Config) GuardConfig() toolguard.Config {
	return toolguard.Config{Throttle: c.ThrottleConfig(), FileTools: c.Ownership.FileTools}
}

// HeartbeatConfig converts to the aggregator's typed config.
func (c *Config) HeartbeatConfig() heartbeat.Config {
	overrides := make(map[string]heartbeat.Profile, len(c.Heartbeat.Profiles))
	for name, p := range c.Heartbeat.Profiles {
		overrides[name] = heartbeat.Profile{
			SoftProbe:       time.Duration(p.SoftProbeMs) * time.Millisecond,
			ExpectedSilence: time.Duration(p.ExpectedSilenceMs) * time.Millisecond,
		}
	}
	return heartbeat.Config{
		UIFlushInterval:           time.Duration(c.Heartbeat.UIFlushIntervalMs) * time.Millisecond,
		LLMSummaryInterval:        time.Duration(c.Heartbeat.LLMSummaryIntervalMs) * time.Millisecond,
		SignificantEventThreshold: c.Heartbeat.SignificantEventThreshold,
		ContextThreshold:          c.Heartbeat.ContextThreshold,
		ProfileOverrides:          overrides,
	}
}

// OwnershipOptions converts to ownership tracker options.
func (c *Config) OwnershipOptions() []ownership.Option {
	opts := []ownership.Option{ownership.WithMode(ownership.Mode(c.Ownership.Mode))}
	root := c.Ownership.Root
	if root == "" {
		// Absolute paths under the working directory must key the same
		// file as their relative form.
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}
	if root != "" {
		opts = append(opts, ownership.WithRoot(root))
	}
	if len(c.Ownership.ExemptPatterns) > 0 {
		opts = append(opts, ownership.WithExemptPatterns(c.Ownership.ExemptPatterns...))
	}
	return opts
}

// GateConfig converts to the quality gate's typed config.
func (c *Config) GateConfig() qualitygate.Config {
	q := c.QualityGate
	stages := make(map[qualitygate.StageName]qualitygate.StageConfig, len(q.Stages))
	for name, s := range q.Stages {
		stages[qualitygate.StageName(name)] = qualitygate.StageConfig{Enabled: s.Enabled, Weight: s.Weight, Binary: s.Binary}
	}
	return qualitygate.Config{
		Enabled:            q.Enabled,
		PassThreshold:      q.PassThreshold,
		MaxReviewCycles:    q.MaxReviewCycles,
		EnforceTDD:         q.EnforceTDD,
		ReviewModel:        q.ReviewModel,
		ReviewProvider:     provider.Name(q.ReviewProvider),
		EscalationModel:    q.EscalationModel,
		EscalationProvider: provider.Name(q.EscalationProvider),
		Stages:             stages,
		BaselineAwareTests: q.BaselineAwareTests,
		KnownFailingTests:  q.KnownFailingTests,
		MaxParallelStages:  q.MaxParallelStages,
		StageTimeout:       time.Duration(q.StageTimeoutSeconds) * time.Second,
	}
}

// KeyProvider returns the credential source described by the providers section.
func (c *Config) KeyProvider() provider.EnvKeyProvider {
	return provider.EnvKeyProvider{
		MoonshotEnv:      c.Providers.MoonshotKeyEnv,
		AnthropicEnv:     c.Providers.AnthropicKeyEnv,
		OpenAIEnv:        c.Providers.OpenAIKeyEnv,
		OpenAIBaseURLEnv: c.Providers.OpenAIBaseURLEnv,
	}
}

// ClientFactory returns a provider client factory with configured base
// URLs and timeouts.
func (c *Config) ClientFactory(keys provider.KeyProvider) provider.Factory {
	timeout := time.Duration(c.Providers.TimeoutSeconds) * time.Second
	opts := make(map[provider.Name][]provider.ClientOption)
	for name, url := range map[provider.Name]string{
		provider.Anthropic: c.Providers.AnthropicBaseURL,
		provider.OpenAI:    c.Providers.OpenAIBaseURL,
		provider.Moonshot:  c.Providers.MoonshotBaseURL,
	} {
		o := []provider.ClientOption{provider.WithTimeout(timeout)}
		if url != "" {
			o = append(o, provider.WithBaseURL(url))
		}
		opts[name] = o
	}
	return provider.Factory{Keys: keys, Options: opts}
}

// LocalCheckConfig converts to the command runner's typed config.
func (c *Config) LocalCheckConfig() localcheck.Config {
	l := c.LocalChecks
	return localcheck.Config{
		TypeCheckCmd:     l.TypeCheckCmd,
		TestCmd:          l.TestCmd,
		InstallCmd:       l.InstallCmd,
		TypeCheckTimeout: time.Duration(l.TypeCheckTimeoutSeconds) * time.Second,
		TestTimeout:      time.Duration(l.TestTimeoutSeconds) * time.Second,
		InstallTimeout:   time.Duration(l.InstallTimeoutSeconds) * time.Second,
		ReportPath:       l.ReportPath,
	}
}

// CacheFile returns the resolved local-check cache path.
func (c *LocalChecksConfig) CacheFile() string {
	return expandPath(c.CachePath, "checks.db")
}

// CacheTTL returns the cache TTL as a time.Duration.
func (c *LocalChecksConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// SpeculativeDiffTTL returns the speculative diff TTL as a time.Duration.
func (c *ReviewConfig) SpeculativeDiffTTL() time.Duration {
	return time.Duration(c.SpeculativeDiffTTLSeconds) * time.Second
}

// File returns the resolved audit log path.
func (c *AuditConfig) File() string {
	return expandPath(c.Path, "audit.jsonl")
}

// Rotation returns the rotation settings of the audit log.
func (c *AuditConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{MaxSizeBytes: int64(c.MaxSizeMB) << 20, MaxBackups: c.MaxBackups}
}

// Debounce returns the spec watcher debounce as a time.Duration.
func (c *SpecConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}
