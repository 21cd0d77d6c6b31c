// Package ownership detects teammates on the same team writing the same file.
//
// The first teammate to modify a path owns it. Later writes by other
// teammates produce a [Conflict] instead of transferring ownership; in
// strict mode the conflict is marked blocked so the caller can refuse the
// write. Ownership is released explicitly when a teammate finishes.
package ownership

import (
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
)

type teamFiles struct {
	files     map[string]*FileOwnership
	conflicts []Conflict
}

// Tracker holds file ownership for all teams. It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	teams  map[string]*teamFiles
	mode   Mode
	root   string
	exempt []glob.Glob
	bus    *event.Bus
	now    func() time.Time
	logger *logging.Logger
}

// New creates a Tracker in warn mode.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		teams:  make(map[string]*teamFiles),
		mode:   ModeWarn,
		now:    time.Now,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mode returns the conflict mode.
func (t *Tracker) Mode() Mode { return t.mode }

func normalizeRoot(root string) string {
	root = strings.ReplaceAll(root, `\`, "/")
	if root == "" {
		return ""
	}
	return strings.TrimSuffix(path.Clean(root), "/")
}

// Normalize converts p to a clean, slash-separated path relative to the
// tracker root. Without a root, absolute and relative spellings of a file
// are distinct keys; paths outside the root stay absolute.
func (t *Tracker) Normalize(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if t.root != "" && t.root != "/" {
		if p == t.root {
			return ""
		}
		p = strings.TrimPrefix(p, t.root+"/")
	}
	p = strings.TrimPrefix(p, "./")
	if p == "." {
		return ""
	}
	return p
}

// IsExempt reports whether a path never takes ownership.
func (t *Tracker) IsExempt(p string) bool {
	n := t.Normalize(p)
	for _, g := range t.exempt {
		if g.Match(n) || g.Match(path.Base(n)) {
			return true
		}
	}
	return false
}

// RecordModification records that a teammate modified a file. It returns
// nil when the teammate owns (or now owns) the file, and a conflict when
// another teammate already owns it. Ownership is never transferred.
func (t *Tracker) RecordModification(teamID, teammateID, teammateName, filePath string) *Conflict {
	p := t.Normalize(filePath)
	if p == "" || t.IsExempt(p) {
		return nil
	}

	t.mu.Lock()
	now := t.now()
	tf, ok := t.teams[teamID]
	if !ok {
		tf = &teamFiles{files: make(map[string]*FileOwnership)}
		t.teams[teamID] = tf
	}

	owner, ok := tf.files[p]
	if !ok {
		tf.files[p] = &FileOwnership{
			Path:              p,
			OwnerID:           teammateID,
			OwnerName:         teammateName,
			ModificationCount: 1,
			FirstModifiedAt:   now,
			LastModifiedAt:    now,
		}
		t.mu.Unlock()
		return nil
	}
	if owner.OwnerID == teammateID {
		owner.ModificationCount++
		owner.LastModifiedAt = now
		t.mu.Unlock()
		return nil
	}

	c := Conflict{
		TeamID:           teamID,
		Path:             p,
		CurrentOwnerID:   owner.OwnerID,
		CurrentOwnerName: owner.OwnerName,
		AttemptedByID:    teammateID,
		AttemptedByName:  teammateName,
		Blocked:          t.mode == ModeStrict,
		DetectedAt:       now,
	}
	tf.conflicts = append(tf.conflicts, c)
	t.mu.Unlock()

	t.logger.WithTeam(teamID).Warn("file ownership conflict",
		"path", p,
		"owner", c.CurrentOwnerName,
		"attempted_by", teammateName,
		"blocked", c.Blocked)
	if t.bus != nil {
		t.bus.Publish(event.NewFileConflictEvent(teamID, p, c.CurrentOwnerID, c.CurrentOwnerName, teammateID, teammateName, c.Blocked))
	}
	return &c
}

// CheckConflict reports the conflict a write would cause without
// recording anything.
func (t *Tracker) CheckConflict(teamID, filePath, teammateID string) *Conflict {
	p := t.Normalize(filePath)
	if p == "" || t.IsExempt(p) {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	tf, ok := t.teams[teamID]
	if !ok {
		return nil
	}
	owner, ok := tf.files[p]
	if !ok || owner.OwnerID == teammateID {
		return nil
	}
	return &Conflict{
		TeamID:           teamID,
		Path:             p,
		CurrentOwnerID:   owner.OwnerID,
		CurrentOwnerName: owner.OwnerName,
		AttemptedByID:    teammateID,
		Blocked:          t.mode == ModeStrict,
		DetectedAt:       t.now(),
	}
}

// Owner returns the ownership record of a path.
func (t *Tracker) Owner(teamID, filePath string) (FileOwnership, bool) {
	p := t.Normalize(filePath)

	t.mu.RLock()
	defer t.mu.RUnlock()

	if tf, ok := t.teams[teamID]; ok {
		if o, ok := tf.files[p]; ok {
			return *o, true
		}
	}
	return FileOwnership{}, false
}

// ReleaseOwnership releases a file if the teammate owns it.
// Returns true if ownership was released.
func (t *Tracker) ReleaseOwnership(teamID, filePath, teammateID string) bool {
	p := t.Normalize(filePath)

	t.mu.Lock()
	defer t.mu.Unlock()

	tf, ok := t.teams[teamID]
	if !ok {
		return false
	}
	if o, ok := tf.files[p]; ok && o.OwnerID == teammateID {
		delete(tf.files, p)
		return true
	}
	return false
}

// ReleaseTeammateFiles releases every file the teammate owns and returns
// the released paths in sorted order.
func (t *Tracker) ReleaseTeammateFiles(teamID, teammateID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	released := []string{}
	tf, ok := t.teams[teamID]
	if !ok {
		return released
	}
	for p, o := range tf.files {
		if o.OwnerID == teammateID {
			delete(tf.files, p)
			released = append(released, p)
		}
	}
	sort.Strings(released)
	return released
}

// TeammateFiles returns the sorted paths a teammate owns.
func (t *Tracker) TeammateFiles(teamID, teammateID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	files := []string{}
	if tf, ok := t.teams[teamID]; ok {
		for p, o := range tf.files {
			if o.OwnerID == teammateID {
				files = append(files, p)
			}
		}
	}
	sort.Strings(files)
	return files
}

// Conflicts returns the conflicts recorded for a team, oldest first.
func (t *Tracker) Conflicts(teamID string) []Conflict {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if tf, ok := t.teams[teamID]; ok {
		return append([]Conflict{}, tf.conflicts...)
	}
	return []Conflict{}
}

// TeamFiles returns a copy of the team's ownership map keyed by path.
func (t *Tracker) TeamFiles(teamID string) map[string]FileOwnership {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]FileOwnership)
	if tf, ok := t.teams[teamID]; ok {
		for p, o := range tf.files {
			out[p] = *o
		}
	}
	return out
}

// ClearTeam discards all ownership state for a team.
func (t *Tracker) ClearTeam(teamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.teams, teamID)
}
