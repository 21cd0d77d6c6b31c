package ownership

import (
	"time"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
)

// Mode controls how conflicting writes are treated.
type Mode string

const (
	// ModeWarn reports conflicts without preventing the write.
	ModeWarn Mode = "warn"
	// ModeStrict flags conflicting writes as blocked.
	ModeStrict Mode = "strict"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m == ModeWarn || m == ModeStrict
}

// FileOwnership records the current owner of a file within a team.
type FileOwnership struct {
	Path              string    `json:"path"`
	OwnerID           string    `json:"ownerId"`
	OwnerName         string    `json:"ownerName"`
	ModificationCount int       `json:"modificationCount"`
	FirstModifiedAt   time.Time `json:"firstModifiedAt"`
	LastModifiedAt    time.Time `json:"lastModifiedAt"`
}

// Conflict describes a teammate touching a file another teammate owns.
type Conflict struct {
	TeamID           string    `json:"teamId"`
	Path             string    `json:"path"`
	CurrentOwnerID   string    `json:"currentOwnerId"`
	CurrentOwnerName string    `json:"currentOwnerName"`
	AttemptedByID    string    `json:"attemptedById"`
	AttemptedByName  string    `json:"attemptedByName,omitempty"`
	Blocked          bool      `json:"blocked"`
	DetectedAt       time.Time `json:"detectedAt"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMode sets the conflict mode. Unknown modes are ignored.
func WithMode(mode Mode) Option {
	return func(t *Tracker) {
		if mode.IsValid() {
			t.mode = mode
		}
	}
}

// WithBus publishes conflicts as file:conflict events.
func WithBus(bus *event.Bus) Option {
	return func(t *Tracker) { t.bus = bus }
}

// WithRoot strips the given workspace root from absolute paths.
func WithRoot(root string) Option {
	return func(t *Tracker) { t.root = normalizeRoot(root) }
}

// WithExemptPatterns exempts matching paths (e.g. lockfiles) from ownership.
// Patterns use glob syntax with "/" as separator; invalid patterns are skipped
// and logged.
func WithExemptPatterns(patterns ...string) Option {
	return func(t *Tracker) {
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				t.logger.Warn("invalid ownership exempt pattern", "pattern", p, "error", err)
				continue
			}
			t.exempt = append(t.exempt, g)
		}
	}
}

// WithLogger sets the logger. Apply before WithExemptPatterns to capture
// pattern errors.
func WithLogger(l *logging.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}
