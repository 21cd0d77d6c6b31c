package qualitygate

import (
	"strings"
	"time"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/provider"
	"github.com/Iron-Ham/crew/internal/spec"
)

// StagePassScore is the minimum score for a weighted stage to count as passed.
const StagePassScore = 70

// Task types that drive test requirements and TDD enforcement.
const (
	TaskTypeFeature  = "feature"
	TaskTypeBugfix   = "bugfix"
	TaskTypeRefactor = "refactor"
	TaskTypeDocs     = "docs"
	TaskTypeOther    = "other"
)

// TDD phases. Red, green and refactor are accepted as aliases.
const (
	// TDDPhaseTestWriting is the phase in which a feature task must add tests.
	TDDPhaseTestWriting    = "test-writing"
	TDDPhaseImplementation = "implementation"
	TDDPhaseRefactor       = "refactor"
)

var tddPhaseAliases = map[string]string{
	"red":   TDDPhaseTestWriting,
	"green": TDDPhaseImplementation,
}

// NormalizeTDDPhase maps a phase name or alias to its canonical form. It
// returns false for unknown phases. An empty phase is valid.
func NormalizeTDDPhase(phase string) (string, bool) {
	phase = strings.ToLower(strings.TrimSpace(phase))
	if canonical, ok := tddPhaseAliases[phase]; ok {
		return canonical, true
	}
	switch phase {
	case "", TDDPhaseTestWriting, TDDPhaseImplementation, TDDPhaseRefactor:
		return phase, true
	}
	return "", false
}

// Input is everything one gate run needs. The pipeline keeps no state
// between runs.
type Input struct {
	TaskID          string
	TeammateID      string
	TaskType        string
	TaskDescription string
	TDDPhase        string
	Diff            string
	Spec            *spec.Spec
	// Cycle is the 1-based review cycle this run belongs to.
	Cycle int
	// WorkDir is where local checks run. Empty skips them.
	WorkDir string
	Config  Config
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Stage       StageName     `json:"stage"`
	Score       float64       `json:"score"`
	Passed      bool          `json:"passed"`
	Skipped     bool          `json:"skipped,omitempty"`
	Issues      []string      `json:"issues,omitempty"`
	Suggestions []string      `json:"suggestions,omitempty"`
	Kind        errors.Kind   `json:"kind,omitempty"`
	Attempts    int           `json:"attempts,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func passedStage(name StageName) StageResult {
	return StageResult{Stage: name, Score: 100, Passed: true}
}

func skippedStage(name StageName, reason, suggestion string) StageResult {
	r := StageResult{Stage: name, Score: 100, Passed: true, Skipped: true, Issues: []string{reason}}
	if suggestion != "" {
		r.Suggestions = []string{suggestion}
	}
	return r
}

func failedStage(name StageName, err error, issues ...string) StageResult {
	r := StageResult{Stage: name, Score: 0, Kind: errors.KindOf(err)}
	if err != nil {
		issues = append(issues, err.Error())
	}
	r.Issues = issues
	r.Suggestions = []string{errors.SuggestionFor(err)}
	return r
}

// Result is the outcome of a gate run.
type Result struct {
	RunID          string        `json:"runId"`
	TaskID         string        `json:"taskId,omitempty"`
	TeammateID     string        `json:"teammateId,omitempty"`
	Score          float64       `json:"score"`
	Passed         bool          `json:"passed"`
	Stages         []StageResult `json:"stages"`
	Cycle          int           `json:"cycle"`
	MaxCycles      int           `json:"maxCycles"`
	ReviewProvider provider.Name `json:"reviewProvider,omitempty"`
	ReviewModel    string        `json:"reviewModel,omitempty"`
	// StoppedAt names the binary stage that ended the run early.
	StoppedAt  StageName     `json:"stoppedAt,omitempty"`
	Escalation string        `json:"escalation,omitempty"`
	Notes      []string      `json:"notes,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

// Stage returns the result for name, if the stage ran.
func (r Result) Stage(name StageName) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Exhausted reports whether no further review cycles remain.
func (r Result) Exhausted() bool {
	return !r.Passed && r.MaxCycles > 0 && r.Cycle >= r.MaxCycles
}

// Feedback renders the failing stages as a message for the teammate.
func (r Result) Feedback() []string {
	var lines []string
	for _, s := range r.Stages {
		if s.Passed {
			continue
		}
		for _, issue := range s.Issues {
			lines = append(lines, string(s.Stage)+": "+issue)
		}
		for _, sug := range s.Suggestions {
			lines = append(lines, string(s.Stage)+" (suggestion): "+sug)
		}
	}
	return lines
}
