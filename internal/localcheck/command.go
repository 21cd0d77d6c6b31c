package localcheck

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/logging"
)

// Config describes the commands a CommandRunner executes.
type Config struct {
	TypeCheckCmd     []string
	TestCmd          []string
	InstallCmd       []string
	TypeCheckTimeout time.Duration
	TestTimeout      time.Duration
	InstallTimeout   time.Duration
	// ReportPath is the vitest JSON report written by TestCmd, relative to
	// the working directory. Empty means parse the console summary instead.
	ReportPath string
}

// DefaultConfig returns commands for a TypeScript project tested with vitest.
func DefaultConfig() Config {
	return Config{
		TypeCheckCmd:     []string{"npx", "tsc", "--noEmit"},
		TestCmd:          []string{"npx", "vitest", "run", "--reporter=json", "--outputFile=.crew/vitest-report.json"},
		InstallCmd:       []string{"npm", "install"},
		TypeCheckTimeout: 60 * time.Second,
		TestTimeout:      120 * time.Second,
		InstallTimeout:   300 * time.Second,
		ReportPath:       ".crew/vitest-report.json",
	}
}

// CommandRunner is a Runner that shells out to the project toolchain.
type CommandRunner struct {
	cfg    Config
	cache  Cache
	logger *logging.Logger
}

// Option configures a CommandRunner.
type Option func(*CommandRunner)

// WithCache enables result caching.
func WithCache(c Cache) Option {
	return func(r *CommandRunner) { r.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *CommandRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewCommandRunner creates a CommandRunner. Empty commands and zero
// timeouts take their defaults.
func NewCommandRunner(cfg Config, opts ...Option) *CommandRunner {
	d := DefaultConfig()
	if len(cfg.TypeCheckCmd) == 0 {
		cfg.TypeCheckCmd = d.TypeCheckCmd
	}
	if len(cfg.TestCmd) == 0 {
		cfg.TestCmd = d.TestCmd
		if cfg.ReportPath == "" {
			cfg.ReportPath = d.ReportPath
		}
	}
	if len(cfg.InstallCmd) == 0 {
		cfg.InstallCmd = d.InstallCmd
	}
	if cfg.TypeCheckTimeout <= 0 {
		cfg.TypeCheckTimeout = d.TypeCheckTimeout
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = d.TestTimeout
	}
	if cfg.InstallTimeout <= 0 {
		cfg.InstallTimeout = d.InstallTimeout
	}
	r := &CommandRunner{cfg: cfg, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type execResult struct {
	output   string
	exitErr  error
	timedOut bool
	duration time.Duration
}

// run executes argv in dir with a timeout. Failures to start the command
// are folded into the output so they can be classified like any other
// failure; only cancellation of the parent context is returned as an error.
func run(ctx context.Context, dir string, argv []string, timeout time.Duration) (execResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	killProcessGroup(cmd)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	res := execResult{output: buf.String(), exitErr: err, duration: time.Since(start)}
	if err != nil && ctx.Err() != nil {
		return res, ctx.Err()
	}
	if err != nil && runCtx.Err() == context.DeadlineExceeded {
		res.timedOut = true
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !res.timedOut {
		res.output += "\n" + err.Error()
	}
	return res, nil
}

// TypeCheck implements Runner.
func (r *CommandRunner) TypeCheck(ctx context.Context, dir string, opts RunOptions) (TypeCheckResult, error) {
	if cached, ok := getCached[TypeCheckResult](r.cache, KindTypeCheck, dir, opts); ok {
		cached.Cached = true
		return cached, nil
	}

	res, err := run(ctx, dir, r.cfg.TypeCheckCmd, r.cfg.TypeCheckTimeout)
	if err != nil {
		return TypeCheckResult{}, err
	}
	result := TypeCheckResult{
		Passed:    res.exitErr == nil,
		RawOutput: res.output,
		Errors:    ParseTypeCheckErrors(res.output),
		TimedOut:  res.timedOut,
		Duration:  res.duration,
	}
	if result.TimedOut {
		result.Errors = append(result.Errors, fmt.Sprintf("type-check timed out after %s", r.cfg.TypeCheckTimeout))
	}
	r.logger.Debug("type-check finished", "dir", dir, "passed", result.Passed, "duration", res.duration)
	if !result.TimedOut {
		r.store(KindTypeCheck, dir, opts, result)
	}
	return result, nil
}

// RunTests implements Runner.
func (r *CommandRunner) RunTests(ctx context.Context, dir string, opts RunOptions) (TestResult, error) {
	if cached, ok := getCached[TestResult](r.cache, KindTests, dir, opts); ok {
		cached.Cached = true
		return cached, nil
	}

	var reportPath string
	if r.cfg.ReportPath != "" {
		reportPath = filepath.Join(dir, r.cfg.ReportPath)
		_ = os.Remove(reportPath)
		_ = os.MkdirAll(filepath.Dir(reportPath), 0o755)
	}

	res, err := run(ctx, dir, r.cfg.TestCmd, r.cfg.TestTimeout)
	if err != nil {
		return TestResult{}, err
	}

	var result TestResult
	parsed := false
	if reportPath != "" {
		if data, readErr := os.ReadFile(reportPath); readErr == nil {
			if rep, parseErr := ParseVitestReport(data); parseErr == nil {
				result = rep
				result.RawOutput = rep.RawOutput + res.output
				parsed = true
			} else {
				r.logger.Warn("unreadable vitest report", "path", reportPath, "error", parseErr)
			}
		}
	}
	if !parsed {
		result = ParseVitestSummary(res.output)
	}
	result.TimedOut = res.timedOut
	result.Duration = res.duration
	if res.exitErr != nil {
		result.ExitError = res.exitErr.Error()
	}

	r.logger.Debug("test run finished",
		"dir", dir,
		"total", result.Total,
		"failed", result.Failed,
		"timed_out", result.TimedOut)
	if !result.TimedOut {
		r.store(KindTests, dir, opts, result)
	}
	return result, nil
}

// InstallDependencies implements Runner.
func (r *CommandRunner) InstallDependencies(ctx context.Context, dir string) error {
	res, err := run(ctx, dir, r.cfg.InstallCmd, r.cfg.InstallTimeout)
	if err != nil {
		return err
	}
	if res.timedOut {
		return errors.NewStageError(errors.KindTimeout, "install", fmt.Sprintf("dependency install timed out after %s", r.cfg.InstallTimeout))
	}
	if res.exitErr != nil {
		return errors.NewStageError(errors.KindInfraFailure, "install", "dependency install failed").
			WithCause(fmt.Errorf("%w: %s", res.exitErr, tail(res.output, 2000)))
	}
	r.logger.Info("dependencies installed", "dir", dir, "duration", res.duration)
	return nil
}

func (r *CommandRunner) store(kind, dir string, opts RunOptions, v any) {
	if err := putCached(r.cache, kind, dir, opts, v); err != nil {
		r.logger.Warn("failed to cache check result", "kind", kind, "error", err)
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
