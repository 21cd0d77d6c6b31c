package qualitygate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyVerdict(t *testing.T) {
	tests := []struct {
		text string
		want Verdict
	}{
		{"VERDICT: PASS", VerdictPass},
		{"All checks PASSED.", VerdictPass},
		{"VERDICT: FAIL - missing tests", VerdictFail},
		{"Unit tests PASS but integration FAIL", VerdictFail},
		{"FAIL\n...\nPASS", VerdictFail},
		{"looks fine to me", VerdictUnknown},
		{"the compass points north", VerdictUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyVerdict(tt.text))
		})
	}
}

type countingSource struct {
	calls atomic.Int32
	diff  string
	err   error
}

func (s *countingSource) WorkingDiff(context.Context, string) (string, error) {
	s.calls.Add(1)
	return s.diff, s.err
}

func TestCollector_FailsClosedOnEmptyDiff(t *testing.T) {
	for _, diff := range []string{"", "   \n\t\n"} {
		c := NewCollector(&countingSource{diff: diff}, time.Minute)
		p := c.Prepare(context.Background(), "alice", t.TempDir())

		assert.False(t, p.UsesGitDiff)
		assert.Empty(t, p.ReviewInput)
		assert.NotEmpty(t, p.FailureReason)
		assert.False(t, p.OK())
	}
}

func TestCollector_SourceError(t *testing.T) {
	c := NewCollector(&countingSource{err: errors.New("not a git repository")}, time.Minute)
	p := c.Prepare(context.Background(), "alice", "/nowhere")
	assert.Contains(t, p.FailureReason, "not a git repository")
	assert.False(t, p.UsesGitDiff)
}

func TestCollector_ReusesFreshSpeculativeDiff(t *testing.T) {
	src := &countingSource{diff: "working diff"}
	c := NewCollector(src, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.StoreSpeculative("alice", sampleDiff)
	now = now.Add(30 * time.Second)
	p := c.Prepare(context.Background(), "alice", "")

	assert.Equal(t, sampleDiff, p.ReviewInput)
	assert.True(t, p.FromSpeculative)
	assert.Equal(t, int32(0), src.calls.Load())

	// consumed: the next review collects again
	p = c.Prepare(context.Background(), "alice", "")
	assert.Equal(t, "working diff", p.ReviewInput)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCollector_StaleSpeculativeDiffIsRecollected(t *testing.T) {
	src := &countingSource{diff: "working diff"}
	c := NewCollector(src, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.StoreSpeculative("alice", sampleDiff)
	now = now.Add(2 * time.Minute)
	p := c.Prepare(context.Background(), "alice", "")

	assert.Equal(t, "working diff", p.ReviewInput)
	assert.False(t, p.FromSpeculative)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestDispatcher_BoundsAndParallelism(t *testing.T) {
	const teammates = 4
	const limit = 2

	d := NewDispatcher(limit)
	var invocations atomic.Int32
	var over atomic.Bool
	var wg sync.WaitGroup
	release := make(chan struct{})

	for range teammates {
		wg.Go(func() {
			err := d.Do(context.Background(), func(context.Context) error {
				invocations.Add(1)
				if d.Stats().InFlight > limit {
					over.Store(true)
				}
				<-release
				return nil
			})
			assert.NoError(t, err)
		})
	}

	require.Eventually(t, func() bool { return d.Stats().InFlight == limit }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	st := d.Stats()
	assert.Equal(t, teammates, st.Total)
	assert.Equal(t, int32(teammates), invocations.Load())
	assert.Greater(t, st.Peak, 1)
	assert.LessOrEqual(t, st.Peak, limit)
	assert.False(t, over.Load())
	assert.Equal(t, 0, st.InFlight)
}

func TestDispatcher_CancelledWait(t *testing.T) {
	d := NewDispatcher(1)
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = d.Do(context.Background(), func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(hold)
}

func TestDispatcher_SetLimitWakesWaiters(t *testing.T) {
	d := NewDispatcher(1)
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = d.Do(context.Background(), func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = d.Do(context.Background(), func(context.Context) error { return nil })
		close(done)
	}()

	d.SetLimit(0)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter not released after SetLimit(0)")
	}
	close(hold)
}
