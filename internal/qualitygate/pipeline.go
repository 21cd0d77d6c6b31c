// Package qualitygate scores a teammate's diff before its task may complete.
//
// A run goes through binary local checks (syntax, tests), optional TDD
// enforcement, and weighted model-judged review stages. Binary failures end
// the run early. Provider and subprocess failures become failed stages with
// a suggestion; [Pipeline.Run] never returns an error. When no provider has
// credentials the model-judged stages are skipped-passed.
package qualitygate

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/localcheck"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/provider"
)

// ClientFactory builds provider clients. [provider.Factory] satisfies it.
type ClientFactory interface {
	Client(name provider.Name) (provider.Client, error)
}

// Pipeline runs quality gates. It is safe for concurrent use.
type Pipeline struct {
	runner  localcheck.Runner
	keys    provider.KeyProvider
	clients ClientFactory
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRunner sets the local check runner. Without one the syntax and tests
// stages are skipped-passed.
func WithRunner(r localcheck.Runner) Option {
	return func(p *Pipeline) { p.runner = r }
}

// WithKeys sets the credential source used for provider resolution.
func WithKeys(k provider.KeyProvider) Option {
	return func(p *Pipeline) { p.keys = k }
}

// WithClientFactory overrides how provider clients are built.
func WithClientFactory(f ClientFactory) Option {
	return func(p *Pipeline) { p.clients = f }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. Credentials default to the environment.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		keys:   provider.EnvKeyProvider{},
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.clients == nil {
		p.clients = provider.Factory{Keys: p.keys}
	}
	return p
}

// Run executes one gate run.
func (p *Pipeline) Run(ctx context.Context, in Input) (res Result) {
	cfg := in.Config
	start := p.now()
	res = Result{
		RunID:          uuid.NewString(),
		TaskID:         in.TaskID,
		TeammateID:     in.TeammateID,
		Cycle:          max(in.Cycle, 1),
		MaxCycles:      cfg.MaxReviewCycles,
		ReviewProvider: cfg.ReviewProvider,
		ReviewModel:    cfg.ReviewModel,
		StartedAt:      start,
	}
	in.Cycle = res.Cycle
	log := p.logger.With("run_id", res.RunID, "task_id", in.TaskID).WithTeammate(in.TeammateID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("quality gate panicked", "panic", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
			res.Passed = false
			res.Notes = append(res.Notes, fmt.Sprintf("internal error: %v", r))
		}
		res.Duration = p.now().Sub(start)
		log.Info("quality gate finished",
			"passed", res.Passed,
			"score", res.Score,
			"cycle", res.Cycle,
			"stopped_at", string(res.StoppedAt),
			"duration", res.Duration)
	}()

	if !cfg.Enabled {
		res.Score, res.Passed = 100, true
		res.Notes = append(res.Notes, "quality gate disabled")
		return res
	}

	if strings.TrimSpace(in.Diff) == "" {
		err := errors.NewStageError(errors.KindEmptyDiff, string(StageCompleteness), "no changes to review")
		res.Stages = append(res.Stages, failedStage(StageCompleteness, err))
		res.StoppedAt = StageCompleteness
		return p.finish(ctx, in, res)
	}

	for _, name := range []StageName{StageSyntax, StageTests} {
		if !cfg.StageEnabled(name) {
			continue
		}
		stage := p.localStage(ctx, in, name)
		res.Stages = append(res.Stages, stage)
		if !stage.Passed {
			res.StoppedAt = name
			return p.finish(ctx, in, res)
		}
	}

	if stage, ok := checkTDD(in); !ok {
		res.Stages = append(res.Stages, stage)
		res.StoppedAt = StageCompleteness
		return p.finish(ctx, in, res)
	}

	res.Stages = append(res.Stages, p.reviewStages(ctx, in, &res)...)
	return p.finish(ctx, in, res)
}

func (p *Pipeline) localStage(ctx context.Context, in Input, name StageName) StageResult {
	if p.runner == nil || in.WorkDir == "" {
		return skippedStage(name, "local checks not configured", "")
	}
	if name == StageSyntax {
		return p.runSyntax(ctx, in)
	}
	return p.runTests(ctx, in)
}

// reviewStages resolves a provider and runs the enabled AI and SDD stages
// as one batch.
func (p *Pipeline) reviewStages(ctx context.Context, in Input, res *Result) []StageResult {
	cfg := in.Config
	var names []StageName
	for _, name := range AIStages {
		if cfg.StageEnabled(name) {
			names = append(names, name)
		}
	}
	if in.Spec.HasRequirements() {
		for _, name := range SDDStages {
			if cfg.StageEnabled(name) {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return nil
	}

	resolution, ok := provider.Resolve(p.keys, cfg.ReviewProvider, cfg.ReviewModel)
	if !ok {
		res.Notes = append(res.Notes, "AI review skipped: no provider credentials configured")
		suggestion := errors.SuggestionFor(errors.ErrNoCredentials)
		stages := make([]StageResult, 0, len(names))
		for _, name := range names {
			stages = append(stages, skippedStage(name, "skipped: no provider credentials available", suggestion))
		}
		return stages
	}
	res.ReviewProvider = resolution.Provider
	res.ReviewModel = resolution.Model
	if resolution.Note != "" {
		res.Notes = append(res.Notes, resolution.Note)
		p.logger.Info("review provider resolved", "provider", string(resolution.Provider), "model", resolution.Model, "note", resolution.Note)
	}

	client, err := p.clients.Client(resolution.Provider)
	if err != nil {
		stages := make([]StageResult, 0, len(names))
		for _, name := range names {
			stages = append(stages, failedStage(name, err, "review client unavailable"))
		}
		return stages
	}

	jobs := make([]reviewJob, 0, len(names))
	for _, name := range names {
		run := func(ctx context.Context) StageResult {
			return p.aiStage(ctx, in, client, resolution.Model, name)
		}
		if slices.Contains(SDDStages, name) {
			run = func(ctx context.Context) StageResult {
				return p.sddStage(ctx, in, client, resolution.Model, name)
			}
		}
		jobs = append(jobs, reviewJob{stage: name, run: run})
	}
	return p.runBatch(ctx, cfg, jobs)
}

// finish scores the run and escalates when the last cycle failed.
func (p *Pipeline) finish(ctx context.Context, in Input, res Result) Result {
	res.Score, res.Passed = Score(res.Stages, in.Config)
	// A stopped run fails even when the stopping stage carries no weight.
	if res.StoppedAt != "" {
		res.Passed = false
		if !weightedStageRan(res.Stages, in.Config) {
			res.Score = 0
		}
	}
	if res.Exhausted() {
		text, note := p.escalate(ctx, in, res.Stages)
		res.Escalation = text
		if note != "" {
			res.Notes = append(res.Notes, note)
		}
	}
	return res
}
