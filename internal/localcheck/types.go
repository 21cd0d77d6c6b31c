// Package localcheck runs the local verification steps of the quality
// gate: a type-check, the test suite, and a dependency install used to
// remediate infrastructure failures. Results can be cached in SQLite keyed
// by the content being checked.
package localcheck

import (
	"context"
	"time"
)

// TypeCheckResult is the outcome of a type-check run.
type TypeCheckResult struct {
	Passed    bool              `json:"passed"`
	RawOutput string            `json:"rawOutput"`
	Errors    []string          `json:"errors"`
	TimedOut  bool              `json:"timedOut,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Cached    bool              `json:"cached,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TestResult is the outcome of a test-suite run.
type TestResult struct {
	Total       int               `json:"total"`
	PassedCount int               `json:"passedCount"`
	Failed      int               `json:"failed"`
	Skipped     int               `json:"skipped"`
	FailedTests []FailedTest      `json:"failedTests"`
	RawOutput   string            `json:"rawOutput"`
	TimedOut    bool              `json:"timedOut,omitempty"`
	ExitError   string            `json:"exitError,omitempty"`
	Duration    time.Duration     `json:"duration"`
	Cached      bool              `json:"cached,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FailedTest names a failing assertion and the first line of its message.
type FailedTest struct {
	Suite    string `json:"suite,omitempty"`
	FullName string `json:"fullName"`
	Message  string `json:"message,omitempty"`
}

// FailedNames returns the full names of the failing tests.
func (r TestResult) FailedNames() []string {
	names := make([]string, 0, len(r.FailedTests))
	for _, f := range r.FailedTests {
		names = append(names, f.FullName)
	}
	return names
}

// RunOptions tune a single run.
type RunOptions struct {
	// Fingerprint identifies the content under test. Empty disables caching.
	Fingerprint string
	// BypassCache forces a fresh run; the fresh result is still stored.
	BypassCache bool
}

// Runner executes local checks in a working directory.
type Runner interface {
	TypeCheck(ctx context.Context, dir string, opts RunOptions) (TypeCheckResult, error)
	RunTests(ctx context.Context, dir string, opts RunOptions) (TestResult, error)
	InstallDependencies(ctx context.Context, dir string) error
}
