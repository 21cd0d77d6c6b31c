package qualitygate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryMachine(t *testing.T) {
	tests := []struct {
		name           string
		outcomes       []outcome
		remediateErr   error
		wantAttempts   int
		wantRemediated bool
		wantRetried    bool
	}{
		{"done first time", []outcome{outcomeDone}, nil, 1, false, false},
		{"retry once", []outcome{outcomeRetry, outcomeRetry, outcomeRetry}, nil, 2, false, true},
		{"remediate then pass", []outcome{outcomeRemediate, outcomeDone}, nil, 2, true, false},
		{"remediation fails", []outcome{outcomeRemediate}, errors.New("npm exploded"), 1, true, false},
		{"never exceeds max", []outcome{outcomeRemediate, outcomeRetry, outcomeRetry}, nil, 2, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			m := retryMachine[int]{
				maxAttempts: 2,
				attempt: func(context.Context, bool) (int, error) {
					calls++
					return calls - 1, nil
				},
				classify: func(i int) outcome {
					return tt.outcomes[min(i, len(tt.outcomes)-1)]
				},
				remediate: func(context.Context) error { return tt.remediateErr },
			}

			_, tr, err := m.run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantAttempts, tr.Attempts)
			assert.Equal(t, tt.wantAttempts, calls)
			assert.Equal(t, tt.wantRemediated, tr.Remediated)
			assert.Equal(t, tt.wantRetried, tr.Retried)
		})
	}
}

func TestRetryMachine_AttemptError(t *testing.T) {
	boom := errors.New("exec failed")
	m := retryMachine[int]{
		maxAttempts: 2,
		attempt:     func(context.Context, bool) (int, error) { return 0, boom },
		classify:    func(int) outcome { return outcomeRetry },
	}
	_, tr, err := m.run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, tr.Attempts)
}
