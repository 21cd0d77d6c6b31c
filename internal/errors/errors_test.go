package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Kind Tests
// -----------------------------------------------------------------------------

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindUnknown, "unknown"},
		{KindInfraFailure, "infra-failure"},
		{KindNonJSONResponse, "non-json-response"},
		{KindHardBlock, "hard-block"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("Kind.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKind_Retryable(t *testing.T) {
	retryable := []Kind{KindInfraFailure, KindTimeout, KindTestFailures}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s.Retryable() = false, want true", k)
		}
	}
	terminal := []Kind{KindConfigError, KindNonJSONResponse, KindCredentialMissing, KindConflict}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("%s.Retryable() = true, want false", k)
		}
	}
}

// -----------------------------------------------------------------------------
// StageError Tests
// -----------------------------------------------------------------------------

func TestStageError_Error(t *testing.T) {
	cause := fmt.Errorf("exit status 1")
	err := NewStageError(KindInfraFailure, "tests", "cannot find module").WithCause(cause)

	got := err.Error()
	for _, want := range []string{"infra-failure", "[stage=tests]", "cannot find module", "exit status 1"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestStageError_TimeoutMatchesSentinel(t *testing.T) {
	err := Wrap(NewStageError(KindTimeout, "syntax", "type-check exceeded 60s"), "run syntax")
	if !Is(err, ErrTimeout) {
		t.Error("timeout stage error should match ErrTimeout")
	}
	if Is(NewStageError(KindConfigError, "syntax", "bad tsconfig"), ErrTimeout) {
		t.Error("config error must not match ErrTimeout")
	}
}

// -----------------------------------------------------------------------------
// ProviderError Tests
// -----------------------------------------------------------------------------

func TestProviderError(t *testing.T) {
	err := NewProviderError("anthropic", 529, strings.Repeat("x", 1000))
	if len(err.Body) > 520 {
		t.Errorf("Body length = %d, want truncated", len(err.Body))
	}
	if !strings.Contains(err.Error(), "status 529") {
		t.Errorf("Error() = %q, want status code", err.Error())
	}
	if !IsRetryable(err) {
		t.Error("5xx should be retryable")
	}
	if IsRetryable(NewProviderError("openai", 401, "bad key")) {
		t.Error("401 should not be retryable")
	}
	if KindOf(Wrap(err, "review")) != KindProviderHTTP {
		t.Errorf("KindOf = %v, want %v", KindOf(err), KindProviderHTTP)
	}
}

// -----------------------------------------------------------------------------
// Input Error Tests
// -----------------------------------------------------------------------------

func TestInputErrors_MatchSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"not found", NewNotFoundError("task", "t1"), ErrNotFound},
		{"validation", NewValidationError("title", "required"), ErrInvalidInput},
		{"transition", NewTransitionError("task", "t1", "completed", "in_progress"), ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrapf(tt.err, "op %d", 1)
			if !Is(wrapped, tt.target) {
				t.Errorf("Is(%v, %v) = false, want true", wrapped, tt.target)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	if got := NewValidationError("", "empty").Error(); got != "validation error: empty" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewValidationError("name", "empty").Error(); !strings.Contains(got, "field=name") {
		t.Errorf("Error() = %q, want field", got)
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", New("boom"), KindUnknown},
		{"stage", NewStageError(KindNoTests, "tests", "0 tests"), KindNoTests},
		{"timeout sentinel", Wrap(ErrTimeout, "exec"), KindTimeout},
		{"credentials", Wrap(ErrNoCredentials, "resolve"), KindCredentialMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSuggestionFor(t *testing.T) {
	custom := NewStageError(KindInfraFailure, "tests", "x").WithSuggestion("run pnpm install")
	if got := SuggestionFor(custom); got != "run pnpm install" {
		t.Errorf("SuggestionFor(custom) = %q", got)
	}
	if got := SuggestionFor(ErrNoCredentials); !strings.Contains(got, "credentials") {
		t.Errorf("SuggestionFor(ErrNoCredentials) = %q, want mention of credentials", got)
	}
	if got := SuggestionFor(New("mystery")); got == "" {
		t.Error("SuggestionFor should never be empty")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}
