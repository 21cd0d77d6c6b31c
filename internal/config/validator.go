package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/crew/internal/ownership"
	"github.com/Iron-Ham/crew/internal/provider"
	"github.com/Iron-Ham/crew/internal/qualitygate"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "throttle.max_window")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidOwnershipModes returns the list of valid ownership modes
func ValidOwnershipModes() []string {
	return []string{string(ownership.ModeWarn), string(ownership.ModeStrict)}
}

// ValidProviders returns the list of valid provider names
func ValidProviders() []string {
	return []string{string(provider.Anthropic), string(provider.OpenAI), string(provider.Moonshot)}
}

// ValidStages returns the list of quality gate stage names
func ValidStages() []string {
	stages := []string{string(qualitygate.StageSyntax), string(qualitygate.StageTests)}
	for _, s := range qualitygate.AIStages {
		stages = append(stages, string(s))
	}
	for _, s := range qualitygate.SDDStages {
		stages = append(stages, string(s))
	}
	return stages
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTeam()...)
	errors = append(errors, c.validateThrottle()...)
	errors = append(errors, c.validateHeartbeat()...)
	errors = append(errors, c.validateOwnership()...)
	errors = append(errors, c.validateQualityGate()...)
	errors = append(errors, c.validateProviders()...)
	errors = append(errors, c.validateLocalChecks()...)
	errors = append(errors, c.validateReview()...)
	errors = append(errors, c.validateAudit()...)
	errors = append(errors, c.validateSpec()...)

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	errors = append(errors, validateRotation("logging", c.Logging.MaxSizeMB, c.Logging.MaxBackups)...)
	errors = append(errors, validatePath("logging.dir", c.Logging.Dir)...)

	return errors
}

// validateTeam validates the TeamConfig
func (c *Config) validateTeam() []ValidationError {
	var errors []ValidationError

	if c.Team.MaxActivity < 0 {
		errors = append(errors, ValidationError{
			Field:   "team.max_activity",
			Value:   c.Team.MaxActivity,
			Message: "must be non-negative (0 = unlimited)",
		})
	}

	return errors
}

// validateThrottle validates the ThrottleConfig
func (c *Config) validateThrottle() []ValidationError {
	var errors []ValidationError
	t := c.Throttle

	if t.InitialWidth < 1 {
		errors = append(errors, ValidationError{
			Field:   "throttle.initial_width",
			Value:   t.InitialWidth,
			Message: "must be at least 1",
		})
	}

	if t.SSThresh < t.InitialWidth {
		errors = append(errors, ValidationError{
			Field:   "throttle.ssthresh",
			Value:   t.SSThresh,
			Message: fmt.Sprintf("must be at least initial_width (%d)", t.InitialWidth),
		})
	}

	if t.MaxWindow < t.SSThresh {
		errors = append(errors, ValidationError{
			Field:   "throttle.max_window",
			Value:   t.MaxWindow,
			Message: fmt.Sprintf("must be at least ssthresh (%d)", t.SSThresh),
		})
	}

	// Sub-second windows turn every burst into a backoff
	const minWindowMs = 1000
	if t.WindowMs < minWindowMs {
		errors = append(errors, ValidationError{
			Field:   "throttle.window_ms",
			Value:   t.WindowMs,
			Message: fmt.Sprintf("must be at least %d milliseconds", minWindowMs),
		})
	}

	if t.BackoffCooldownMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "throttle.backoff_cooldown_ms",
			Value:   t.BackoffCooldownMs,
			Message: "must be non-negative",
		})
	}

	if t.MaxBackoffs < 1 {
		errors = append(errors, ValidationError{
			Field:   "throttle.max_backoffs",
			Value:   t.MaxBackoffs,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateHeartbeat validates the HeartbeatConfig
func (c *Config) validateHeartbeat() []ValidationError {
	var errors []ValidationError
	h := c.Heartbeat

	if h.UIFlushIntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "heartbeat.ui_flush_interval_ms",
			Value:   h.UIFlushIntervalMs,
			Message: "must be positive",
		})
	}

	if h.LLMSummaryIntervalMs < h.UIFlushIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "heartbeat.llm_summary_interval_ms",
			Value:   h.LLMSummaryIntervalMs,
			Message: fmt.Sprintf("must be at least ui_flush_interval_ms (%d)", h.UIFlushIntervalMs),
		})
	}

	if h.SignificantEventThreshold < 1 {
		errors = append(errors, ValidationError{
			Field:   "heartbeat.significant_event_threshold",
			Value:   h.SignificantEventThreshold,
			Message: "must be at least 1",
		})
	}

	if h.ContextThreshold <= 0 || h.ContextThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "heartbeat.context_threshold",
			Value:   h.ContextThreshold,
			Message: "must be in (0, 1]",
		})
	}

	for name, p := range h.Profiles {
		field := fmt.Sprintf("heartbeat.profiles.%s", name)
		if p.SoftProbeMs <= 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".soft_probe_ms",
				Value:   p.SoftProbeMs,
				Message: "must be positive",
			})
		}
		if p.ExpectedSilenceMs < p.SoftProbeMs {
			errors = append(errors, ValidationError{
				Field:   field + ".expected_silence_ms",
				Value:   p.ExpectedSilenceMs,
				Message: "must be at least soft_probe_ms",
			})
		}
	}

	return errors
}

// validateOwnership validates the OwnershipConfig
func (c *Config) validateOwnership() []ValidationError {
	var errors []ValidationError
	o := c.Ownership

	if !slices.Contains(ValidOwnershipModes(), o.Mode) {
		errors = append(errors, ValidationError{
			Field:   "ownership.mode",
			Value:   o.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidOwnershipModes(), ", ")),
		})
	}

	for i, p := range o.ExemptPatterns {
		if _, err := glob.Compile(p, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("ownership.exempt_patterns[%d]", i),
				Value:   p,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	for i, tool := range o.FileTools {
		if strings.TrimSpace(tool) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("ownership.file_tools[%d]", i),
				Value:   tool,
				Message: "tool name cannot be empty",
			})
		}
	}

	errors = append(errors, validatePath("ownership.root", o.Root)...)

	return errors
}

// validateQualityGate validates the QualityGateConfig
func (c *Config) validateQualityGate() []ValidationError {
	var errors []ValidationError
	q := c.QualityGate

	if q.PassThreshold < 0 || q.PassThreshold > 100 {
		errors = append(errors, ValidationError{
			Field:   "quality_gate.pass_threshold",
			Value:   q.PassThreshold,
			Message: "must be between 0 and 100",
		})
	}

	if q.MaxReviewCycles < 1 {
		errors = append(errors, ValidationError{
			Field:   "quality_gate.max_review_cycles",
			Value:   q.MaxReviewCycles,
			Message: "must be at least 1",
		})
	}

	if q.ReviewProvider != "" && !slices.Contains(ValidProviders(), q.ReviewProvider) {
		errors = append(errors, ValidationError{
			Field:   "quality_gate.review_provider",
			Value:   q.ReviewProvider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidProviders(), ", ")),
		})
	}

	if q.EscalationProvider != "" && !slices.Contains(ValidProviders(), q.EscalationProvider) {
		errors = append(errors, ValidationError{
			Field:   "quality_gate.escalation_provider",
			Value:   q.EscalationProvider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidProviders(), ", ")),
		})
	}

	// Sorted for stable error ordering across runs
	names := make([]string, 0, len(q.Stages))
	for name := range q.Stages {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		s := q.Stages[name]
		if !slices.Contains(ValidStages(), name) {
			errors = append(errors, ValidationError{
				Field:   "quality_gate.stages",
				Value:   name,
				Message: fmt.Sprintf("unknown stage; must be one of: %s", strings.Join(ValidStages(), ", ")),
			})
			continue
		}
		if s.Weight < 0 || s.Weight > 1 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("quality_gate.stages.%s.weight", name),
				Value:   s.Weight,
				Message: "must be between 0 and 1",
			})
		}
	}

	if q.MaxParallelStages < 0 {
		errors = append(errors, ValidationError{
			Field:   "quality_gate.max_parallel_stages",
			Value:   q.MaxParallelStages,
			Message: "must be non-negative (0 = one per stage)",
		})
	}

	if q.StageTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "quality_gate.stage_timeout_seconds",
			Value:   q.StageTimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validateProviders validates the ProvidersConfig
func (c *Config) validateProviders() []ValidationError {
	var errors []ValidationError
	p := c.Providers

	for field, url := range map[string]string{
		"providers.anthropic_base_url": p.AnthropicBaseURL,
		"providers.openai_base_url":    p.OpenAIBaseURL,
		"providers.moonshot_base_url":  p.MoonshotBaseURL,
	} {
		if url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   url,
				Message: "must be an http(s) URL",
			})
		}
	}
	slices.SortFunc(errors, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })

	if p.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "providers.timeout_seconds",
			Value:   p.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validateLocalChecks validates the LocalChecksConfig
func (c *Config) validateLocalChecks() []ValidationError {
	var errors []ValidationError
	l := c.LocalChecks

	for field, cmd := range map[string][]string{
		"local_checks.type_check_cmd": l.TypeCheckCmd,
		"local_checks.test_cmd":       l.TestCmd,
	} {
		if len(cmd) == 0 || strings.TrimSpace(cmd[0]) == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   cmd,
				Message: "must name a command",
			})
		}
	}
	slices.SortFunc(errors, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })

	timeouts := []struct {
		field string
		value int
	}{
		{"local_checks.type_check_timeout_seconds", l.TypeCheckTimeoutSeconds},
		{"local_checks.test_timeout_seconds", l.TestTimeoutSeconds},
		{"local_checks.install_timeout_seconds", l.InstallTimeoutSeconds},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			errors = append(errors, ValidationError{
				Field:   t.field,
				Value:   t.value,
				Message: "must be positive",
			})
		}
	}

	if l.CacheEnabled && l.CacheTTLMinutes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "local_checks.cache_ttl_minutes",
			Value:   l.CacheTTLMinutes,
			Message: "must be positive when the cache is enabled",
		})
	}

	errors = append(errors, validatePath("local_checks.cache_path", l.CachePath)...)

	return errors
}

// validateReview validates the ReviewConfig
func (c *Config) validateReview() []ValidationError {
	var errors []ValidationError

	if c.Review.MaxParallelReviews < 1 {
		errors = append(errors, ValidationError{
			Field:   "review.max_parallel_reviews",
			Value:   c.Review.MaxParallelReviews,
			Message: "must be at least 1",
		})
	}

	if c.Review.SpeculativeDiffTTLSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "review.speculative_diff_ttl_seconds",
			Value:   c.Review.SpeculativeDiffTTLSeconds,
			Message: "must be non-negative (0 = disabled)",
		})
	}

	return errors
}

// validateAudit validates the AuditConfig
func (c *Config) validateAudit() []ValidationError {
	var errors []ValidationError

	if !c.Audit.Enabled {
		return errors
	}
	errors = append(errors, validateRotation("audit", c.Audit.MaxSizeMB, c.Audit.MaxBackups)...)
	errors = append(errors, validatePath("audit.path", c.Audit.Path)...)

	return errors
}

// validateSpec validates the SpecConfig
func (c *Config) validateSpec() []ValidationError {
	var errors []ValidationError

	if c.Spec.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "spec.debounce_ms",
			Value:   c.Spec.DebounceMs,
			Message: "must be non-negative",
		})
	}

	if c.Spec.DRIPath != "" && c.Spec.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "spec.dri_path",
			Value:   c.Spec.DRIPath,
			Message: "requires spec.path to be set",
		})
	}

	errors = append(errors, validatePath("spec.path", c.Spec.Path)...)
	errors = append(errors, validatePath("spec.dri_path", c.Spec.DRIPath)...)

	return errors
}

// validateRotation checks the size and backup settings shared by the log
// and audit files.
func validateRotation(section string, maxSizeMB, maxBackups int) []ValidationError {
	var errors []ValidationError

	// Max size must be positive
	if maxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   section + ".max_size_mb",
			Value:   maxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for file size
	const maxFileSizeMB = 1000 // 1GB
	if maxSizeMB > maxFileSizeMB {
		errors = append(errors, ValidationError{
			Field:   section + ".max_size_mb",
			Value:   maxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxFileSizeMB),
		})
	}

	// Max backups must be non-negative
	if maxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   section + ".max_backups",
			Value:   maxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePath rejects paths no filesystem accepts. Empty paths are valid.
func validatePath(field, path string) []ValidationError {
	var errors []ValidationError
	if path == "" {
		return errors
	}

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	// Reasonable path length limit (most filesystems have limits around 4096)
	const maxPathLength = 4096
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}
