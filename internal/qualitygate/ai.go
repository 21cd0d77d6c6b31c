package qualitygate

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/provider"
)

// integrationCap is the highest score a completeness stage may keep when
// the model reports that new code is not wired in.
const integrationCap = StagePassScore - 1

// reviewJob is one model-judged stage in a batch.
type reviewJob struct {
	stage StageName
	run   func(ctx context.Context) StageResult
}

// runBatch runs jobs on a bounded pool. A failing or panicking job becomes
// a failed stage and never affects its siblings. Results keep job order.
func (p *Pipeline) runBatch(ctx context.Context, cfg Config, jobs []reviewJob) []StageResult {
	results := make([]StageResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}
	limit := cfg.MaxParallelStages
	if limit <= 0 || limit > len(jobs) {
		limit = len(jobs)
	}

	wp := pool.New().WithMaxGoroutines(limit)
	for i, job := range jobs {
		wp.Go(func() {
			start := p.now()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("review stage panicked",
						"stage", string(job.stage),
						"panic", fmt.Sprintf("%v", r),
						"stack", string(debug.Stack()))
					results[i] = failedStage(job.stage,
						errors.NewStageError(errors.KindUnknown, string(job.stage), fmt.Sprintf("stage panicked: %v", r)))
				}
				results[i].Stage = job.stage
				results[i].Duration = p.now().Sub(start)
			}()
			results[i] = job.run(ctx)
		})
	}
	wp.Wait()
	return results
}

// complete issues one provider call bounded by the stage timeout.
func (p *Pipeline) complete(ctx context.Context, cfg Config, client provider.Client, model, system, prompt string) (string, error) {
	if cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.StageTimeout)
		defer cancel()
	}
	resp, err := client.Complete(ctx, provider.Request{
		Model:       model,
		System:      system,
		Prompt:      prompt,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// aiStage runs one AI review stage.
func (p *Pipeline) aiStage(ctx context.Context, in Input, client provider.Client, model string, stage StageName) StageResult {
	text, err := p.complete(ctx, in.Config, client, model, reviewSystemPrompt, reviewPrompt(stage, in))
	if err != nil {
		p.logger.Warn("review call failed", "stage", string(stage), "provider", string(client.Provider()), "error", err)
		return failedStage(stage, err, fmt.Sprintf("%s review call failed", client.Provider()))
	}
	payload, err := parseReview(stage, text)
	if err != nil {
		return failedStage(stage, err)
	}

	out := StageResult{
		Stage:       stage,
		Score:       *payload.Score,
		Issues:      payload.Issues,
		Suggestions: payload.Suggestions,
	}
	out.Passed = out.Score >= StagePassScore

	if stage == StageCompleteness && payload.IntegrationVerified != nil && !*payload.IntegrationVerified {
		out.Score = min(out.Score, integrationCap)
		out.Passed = false
		out.Issues = slices.Insert(out.Issues, 0,
			"INTEGRATION FAILURE: new code is not wired into the application (never imported, registered or called)")
		out.Suggestions = append(out.Suggestions, "Wire the new code into an existing entry point and cover that path with a test")
	}
	return out
}
