package qualitygate

import "math"

// Score aggregates stage results. The score is the weighted mean of the
// enabled, weighted stages that ran; skipped stages count as 100. The gate
// passes iff the score reaches cfg.PassThreshold and no binary stage failed.
// When no weighted stage ran the score is 100 unless a binary stage failed.
func Score(stages []StageResult, cfg Config) (float64, bool) {
	var weighted, total float64
	binaryFailed := false

	for _, s := range stages {
		sc := cfg.Stage(s.Stage)
		if sc.Binary {
			if !s.Passed {
				binaryFailed = true
			}
			continue
		}
		if !sc.Enabled || sc.Weight <= 0 {
			continue
		}
		weighted += clampScore(s.Score) * sc.Weight
		total += sc.Weight
	}

	score := 100.0
	if total > 0 {
		score = math.Round(weighted/total*10) / 10
	}
	if binaryFailed {
		if total == 0 {
			score = 0
		}
		return score, false
	}
	return score, score >= cfg.PassThreshold
}

func weightedStageRan(stages []StageResult, cfg Config) bool {
	for _, s := range stages {
		sc := cfg.Stage(s.Stage)
		if !sc.Binary && sc.Enabled && sc.Weight > 0 {
			return true
		}
	}
	return false
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
