package localcheck

import (
	"regexp"
	"strings"
)

// FailureClass classifies the outcome of a test run.
type FailureClass string

const (
	FailureNone         FailureClass = "none"
	FailureNoTests      FailureClass = "no-tests"
	FailureTestFailures FailureClass = "test-failures"
	FailureInfra        FailureClass = "infra-failure"
	FailureTimeout      FailureClass = "timeout"
	FailureConfig       FailureClass = "config-error"
)

var infraPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)cannot find module`),
	regexp.MustCompile(`(?i)module not found`),
	regexp.MustCompile(`(?i)err_module_not_found`),
	regexp.MustCompile(`(?i)cannot find package`),
	regexp.MustCompile(`(?i)command not found`),
	regexp.MustCompile(`(?i)is not recognized as an internal or external command`),
	regexp.MustCompile(`(?i)\benoent\b`),
	regexp.MustCompile(`(?i)node_modules.*(missing|not found)`),
	regexp.MustCompile(`(?i)cannot find (a )?tsconfig`),
	regexp.MustCompile(`(?i)tsconfig\.json.*(not found|does not exist)`),
	regexp.MustCompile(`(?i)executable file not found`),
}

var configPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)error TS5\d{3}`),
	regexp.MustCompile(`(?i)unknown compiler option`),
	regexp.MustCompile(`(?i)failed to load (vitest )?config`),
	regexp.MustCompile(`(?i)invalid (vitest )?configuration`),
	regexp.MustCompile(`(?i)no test suite found`),
}

var noTestsPattern = regexp.MustCompile(`(?i)no test files found`)

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// IsInfraFailure reports whether output indicates missing dependencies,
// modules or toolchain configuration rather than a code problem.
func IsInfraFailure(output string) bool {
	return matchesAny(infraPatterns, output)
}

// IsConfigError reports whether output indicates broken check configuration.
func IsConfigError(output string) bool {
	return matchesAny(configPatterns, output)
}

// ClassifyTestFailure classifies a test run.
func ClassifyTestFailure(r TestResult) FailureClass {
	switch {
	case r.TimedOut:
		return FailureTimeout
	case IsInfraFailure(r.RawOutput):
		return FailureInfra
	case IsConfigError(r.RawOutput):
		return FailureConfig
	case r.Failed > 0:
		return FailureTestFailures
	case r.Total == 0 || noTestsPattern.MatchString(r.RawOutput):
		return FailureNoTests
	case r.ExitError != "":
		return FailureTestFailures
	default:
		return FailureNone
	}
}

// ParseTypeCheckErrors extracts compiler diagnostics ("file(l,c): error TS...")
// from type-check output.
func ParseTypeCheckErrors(output string) []string {
	var errs []string
	for line := range strings.SplitSeq(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "error TS") || strings.HasPrefix(line, "error:") {
			errs = append(errs, line)
		}
	}
	return errs
}
