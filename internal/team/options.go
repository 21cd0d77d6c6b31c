package team

import (
	"time"

	"github.com/Iron-Ham/crew/internal/audit"
	"github.com/Iron-Ham/crew/internal/logging"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAudit mirrors activity to r.
func WithAudit(r audit.Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.audit = r
		}
	}
}

// WithReviewer sets the quality gate used by CompleteTask. Without one,
// CompleteTask completes tasks directly.
func WithReviewer(r Reviewer) Option {
	return func(c *Coordinator) { c.reviewer = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}
