package qualitygate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Iron-Ham/crew/internal/provider"
)

// coverageCredit maps a claimed status to requirement credit.
func coverageCredit(status string) float64 {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "addressed", "linked", "covered", "implemented", "satisfied":
		return 1
	case "partial", "partially_addressed", "partially-addressed":
		return 0.5
	default:
		return 0
	}
}

// coverageScore scores claims against the full item list. Items the model
// does not mention earn no credit; claims about unknown items are ignored.
func coverageScore(items []string, claims []coverageClaim) (float64, []string) {
	if len(items) == 0 {
		return 100, nil
	}
	byID := make(map[string]coverageClaim, len(claims))
	for _, c := range claims {
		byID[strings.ToLower(strings.TrimSpace(c.ID))] = c
	}

	var credit float64
	var gaps []string
	for _, id := range items {
		c, ok := byID[strings.ToLower(id)]
		if !ok {
			gaps = append(gaps, fmt.Sprintf("%s: not assessed (counted as missing)", id))
			continue
		}
		cr := coverageCredit(c.Status)
		credit += cr
		if cr < 1 {
			gap := fmt.Sprintf("%s: %s", id, strings.ToLower(strings.TrimSpace(c.Status)))
			if c.Note != "" {
				gap += " (" + c.Note + ")"
			}
			gaps = append(gaps, gap)
		}
	}
	return math.Round(credit/float64(len(items))*1000) / 10, gaps
}

// sddStage runs one spec-driven stage. The model's own score is ignored in
// favor of the cross-checked coverage.
func (p *Pipeline) sddStage(ctx context.Context, in Input, client provider.Client, model string, stage StageName) StageResult {
	items := in.Spec.RequirementIDs()
	if stage == StageRolloutSafety {
		items = planItems(in.Spec)
		if len(items) == 0 {
			return skippedStage(stage, "spec declares no rollout, rollback or observability plan", "")
		}
	}

	text, err := p.complete(ctx, in.Config, client, model, reviewSystemPrompt, sddPrompt(stage, in, items))
	if err != nil {
		p.logger.Warn("spec review call failed", "stage", string(stage), "provider", string(client.Provider()), "error", err)
		return failedStage(stage, err, fmt.Sprintf("%s review call failed", client.Provider()))
	}
	payload, err := parseReview(stage, text)
	if err != nil {
		return failedStage(stage, err)
	}

	score, gaps := coverageScore(items, payload.Requirements)
	out := StageResult{
		Stage:       stage,
		Score:       score,
		Passed:      score >= StagePassScore,
		Issues:      append(gaps, payload.Issues...),
		Suggestions: payload.Suggestions,
	}
	if reported := *payload.Score; math.Abs(reported-score) >= 25 {
		p.logger.Debug("model score disagrees with coverage", "stage", string(stage), "reported", reported, "computed", score)
	}
	return out
}
