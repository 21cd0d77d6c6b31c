package qualitygate

import (
	"context"
	"fmt"
)

// outcome is what a classifier decides about one attempt.
type outcome int

const (
	outcomeDone      outcome = iota // terminal, pass or fail
	outcomeRetry                    // run again with the cache bypassed
	outcomeRemediate                // install dependencies, then run again
)

func (o outcome) String() string {
	switch o {
	case outcomeRetry:
		return "retry"
	case outcomeRemediate:
		return "remediate"
	default:
		return "done"
	}
}

// retryMachine drives a local check through attempt, classify and
// {retry, remediate-then-retry, done}. It allows at most maxAttempts runs,
// one plain retry and one remediation.
type retryMachine[T any] struct {
	maxAttempts int
	attempt     func(ctx context.Context, bypassCache bool) (T, error)
	classify    func(T) outcome
	remediate   func(ctx context.Context) error
}

// trace records what the machine did, for stage issues and logs.
type trace struct {
	Attempts   int
	Retried    bool
	Remediated bool
	Notes      []string
}

func (m retryMachine[T]) run(ctx context.Context) (T, trace, error) {
	var (
		tr     trace
		last   T
		bypass bool
	)
	maxAttempts := max(m.maxAttempts, 1)

	for tr.Attempts < maxAttempts {
		res, err := m.attempt(ctx, bypass)
		tr.Attempts++
		if err != nil {
			return res, tr, err
		}
		last = res

		next := m.classify(res)
		if tr.Attempts >= maxAttempts {
			break
		}
		switch next {
		case outcomeRemediate:
			if tr.Remediated || m.remediate == nil {
				return last, tr, nil
			}
			tr.Remediated = true
			if err := m.remediate(ctx); err != nil {
				tr.Notes = append(tr.Notes, fmt.Sprintf("dependency install failed: %v", err))
				return last, tr, nil
			}
			tr.Notes = append(tr.Notes, fmt.Sprintf("attempt %d: installed dependencies and retried", tr.Attempts))
			bypass = true
		case outcomeRetry:
			if tr.Retried {
				return last, tr, nil
			}
			tr.Retried = true
			tr.Notes = append(tr.Notes, fmt.Sprintf("attempt %d: retried without cache", tr.Attempts))
			bypass = true
		default:
			return last, tr, nil
		}
	}
	return last, tr, nil
}
