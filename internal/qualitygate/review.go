package qualitygate

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Verdict is a QA verdict inferred from a reviewer's free text.
type Verdict string

const (
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
	VerdictUnknown Verdict = "unknown"
)

var (
	failMarker = regexp.MustCompile(`\b(FAIL|FAILED|FAILING)\b`)
	passMarker = regexp.MustCompile(`\b(PASS|PASSED|PASSING)\b`)
)

// ClassifyVerdict reads PASS/FAIL markers from reviewer output. FAIL wins
// when both appear.
func ClassifyVerdict(text string) Verdict {
	switch {
	case failMarker.MatchString(text):
		return VerdictFail
	case passMarker.MatchString(text):
		return VerdictPass
	default:
		return VerdictUnknown
	}
}

// DiffSource produces the working diff for a directory.
type DiffSource interface {
	WorkingDiff(ctx context.Context, dir string) (string, error)
}

// GitDiff collects the diff against HEAD with git.
type GitDiff struct{}

// WorkingDiff runs git diff HEAD in dir.
func (GitDiff) WorkingDiff(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff in %s: %w", dir, err)
	}
	return string(out), nil
}

// PreparedReview is the input a review will run against.
type PreparedReview struct {
	ReviewInput     string
	UsesGitDiff     bool
	FromSpeculative bool
	FailureReason   string
}

// OK reports whether the review has something to look at.
func (p PreparedReview) OK() bool { return p.FailureReason == "" }

type speculativeDiff struct {
	diff       string
	capturedAt time.Time
}

// Collector gathers review input, reusing a speculative diff captured
// earlier while it is fresh.
type Collector struct {
	mu          sync.Mutex
	source      DiffSource
	ttl         time.Duration
	now         func() time.Time
	speculative map[string]speculativeDiff
}

// NewCollector creates a Collector. A zero ttl disables speculative reuse.
func NewCollector(source DiffSource, ttl time.Duration) *Collector {
	if source == nil {
		source = GitDiff{}
	}
	return &Collector{
		source:      source,
		ttl:         ttl,
		now:         time.Now,
		speculative: make(map[string]speculativeDiff),
	}
}

// StoreSpeculative records a diff captured ahead of review for key.
func (c *Collector) StoreSpeculative(key, diff string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speculative[key] = speculativeDiff{diff: diff, capturedAt: c.now()}
}

// Invalidate drops the speculative diff for key.
func (c *Collector) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.speculative, key)
}

func (c *Collector) takeFresh(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.speculative[key]
	if !ok {
		return "", false
	}
	delete(c.speculative, key)
	if c.ttl <= 0 || c.now().Sub(s.capturedAt) > c.ttl || strings.TrimSpace(s.diff) == "" {
		return "", false
	}
	return s.diff, true
}

// Prepare returns the review input for key. An empty or whitespace-only
// diff fails closed.
func (c *Collector) Prepare(ctx context.Context, key, dir string) PreparedReview {
	if diff, ok := c.takeFresh(key); ok {
		return PreparedReview{ReviewInput: diff, UsesGitDiff: true, FromSpeculative: true}
	}

	diff, err := c.source.WorkingDiff(ctx, dir)
	if err != nil {
		return PreparedReview{FailureReason: "could not collect diff: " + err.Error()}
	}
	if strings.TrimSpace(diff) == "" {
		return PreparedReview{FailureReason: "no changes to review: the working diff is empty"}
	}
	return PreparedReview{ReviewInput: diff, UsesGitDiff: true}
}

// DispatchStats describes review concurrency.
type DispatchStats struct {
	InFlight int
	Peak     int
	Total    int
}

// Dispatcher bounds how many reviews run at once. The limit can change at
// runtime; 0 means unlimited.
type Dispatcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	inFlight int
	peak     int
	total    int
}

// NewDispatcher creates a Dispatcher. Negative limits are treated as 0.
func NewDispatcher(limit int) *Dispatcher {
	d := &Dispatcher{limit: max(limit, 0)}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *Dispatcher) acquire(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Wake waiters when ctx ends so they can return its error.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		case <-done:
		}
	}()

	for d.limit > 0 && d.inFlight >= d.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.inFlight++
	d.total++
	d.peak = max(d.peak, d.inFlight)
	return nil
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight > 0 {
		d.inFlight--
	}
	d.cond.Signal()
}

// Do runs fn once a slot is free. It returns ctx's error if the wait is
// cancelled, otherwise fn's error.
func (d *Dispatcher) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()
	return fn(ctx)
}

// SetLimit changes the limit and wakes waiters.
func (d *Dispatcher) SetLimit(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limit = max(n, 0)
	d.cond.Broadcast()
}

// Stats returns a snapshot of dispatch counters.
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DispatchStats{InFlight: d.inFlight, Peak: d.peak, Total: d.total}
}
