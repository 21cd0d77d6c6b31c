package ownership

import (
	"sync"
	"testing"

	"github.com/Iron-Ham/crew/internal/event"
)

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	return New(append([]Option{WithBus(bus)}, opts...)...), bus
}

func TestRecordModification(t *testing.T) {
	tests := []struct {
		name        string
		mode        Mode
		setup       func(tr *Tracker)
		teammate    string
		path        string
		wantConflct bool
		wantBlocked bool
		wantCount   int
	}{
		{
			name:      "first writer owns",
			mode:      ModeWarn,
			teammate:  "a",
			path:      "src/app.ts",
			wantCount: 1,
		},
		{
			name:      "same writer increments",
			mode:      ModeWarn,
			setup:     func(tr *Tracker) { tr.RecordModification("team", "a", "Alice", "src/app.ts") },
			teammate:  "a",
			path:      "./src/app.ts",
			wantCount: 2,
		},
		{
			name:        "second writer conflicts in warn mode",
			mode:        ModeWarn,
			setup:       func(tr *Tracker) { tr.RecordModification("team", "a", "Alice", "src/app.ts") },
			teammate:    "b",
			path:        `src\app.ts`,
			wantConflct: true,
			wantCount:   1,
		},
		{
			name:        "second writer blocked in strict mode",
			mode:        ModeStrict,
			setup:       func(tr *Tracker) { tr.RecordModification("team", "a", "Alice", "src/app.ts") },
			teammate:    "b",
			path:        "src/lib/../app.ts",
			wantConflct: true,
			wantBlocked: true,
			wantCount:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker(t, WithMode(tt.mode))
			if tt.setup != nil {
				tt.setup(tr)
			}

			c := tr.RecordModification("team", tt.teammate, "Teammate "+tt.teammate, tt.path)
			if (c != nil) != tt.wantConflct {
				t.Fatalf("conflict = %+v, wantConflict %v", c, tt.wantConflct)
			}
			if c != nil {
				if c.Blocked != tt.wantBlocked {
					t.Errorf("Blocked = %v, want %v", c.Blocked, tt.wantBlocked)
				}
				if c.CurrentOwnerID != "a" || c.CurrentOwnerName != "Alice" || c.Path != "src/app.ts" {
					t.Errorf("conflict = %+v", c)
				}
			}

			owner, ok := tr.Owner("team", "src/app.ts")
			if !ok {
				t.Fatal("Owner() not found")
			}
			if owner.ModificationCount != tt.wantCount {
				t.Errorf("ModificationCount = %d, want %d", owner.ModificationCount, tt.wantCount)
			}
		})
	}
}

func TestRecordModification_PublishesConflict(t *testing.T) {
	tr, bus := newTestTracker(t, WithMode(ModeStrict))

	var got []event.FileConflictEvent
	bus.Subscribe(event.FileConflict, func(e event.Event) {
		got = append(got, e.(event.FileConflictEvent))
	})

	tr.RecordModification("team", "a", "Alice", "main.go")
	tr.RecordModification("team", "b", "Bob", "main.go")

	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if got[0].OwnerName != "Alice" || got[0].AttemptedByName != "Bob" || !got[0].Blocked {
		t.Errorf("event = %+v", got[0])
	}
	if n := len(tr.Conflicts("team")); n != 1 {
		t.Errorf("Conflicts() = %d, want 1", n)
	}
}

func TestCheckConflict_IsReadOnly(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.RecordModification("team", "a", "Alice", "main.go")

	if c := tr.CheckConflict("team", "main.go", "b"); c == nil || c.Blocked {
		t.Fatalf("CheckConflict() = %+v, want unblocked conflict", c)
	}
	if c := tr.CheckConflict("team", "main.go", "a"); c != nil {
		t.Errorf("owner should not conflict with itself: %+v", c)
	}
	if c := tr.CheckConflict("team", "other.go", "b"); c != nil {
		t.Errorf("unowned file conflict = %+v", c)
	}
	if n := len(tr.Conflicts("team")); n != 0 {
		t.Errorf("CheckConflict recorded %d conflicts", n)
	}
	if _, ok := tr.Owner("team", "other.go"); ok {
		t.Error("CheckConflict must not claim files")
	}
}

func TestRelease(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.RecordModification("team", "a", "Alice", "b.go")
	tr.RecordModification("team", "a", "Alice", "a.go")
	tr.RecordModification("team", "b", "Bob", "c.go")

	if tr.ReleaseOwnership("team", "c.go", "a") {
		t.Error("non-owner release should fail")
	}
	if !tr.ReleaseOwnership("team", "c.go", "b") {
		t.Error("owner release should succeed")
	}

	released := tr.ReleaseTeammateFiles("team", "a")
	if len(released) != 2 || released[0] != "a.go" || released[1] != "b.go" {
		t.Errorf("released = %v", released)
	}

	if c := tr.RecordModification("team", "b", "Bob", "a.go"); c != nil {
		t.Errorf("released file should be claimable, got %+v", c)
	}
	if files := tr.TeammateFiles("team", "b"); len(files) != 1 || files[0] != "a.go" {
		t.Errorf("TeammateFiles(b) = %v", files)
	}
}

func TestUnknownTeamReturnsEmpty(t *testing.T) {
	tr, _ := newTestTracker(t)

	if got := tr.TeammateFiles("nope", "a"); got == nil || len(got) != 0 {
		t.Errorf("TeammateFiles = %#v", got)
	}
	if got := tr.Conflicts("nope"); got == nil || len(got) != 0 {
		t.Errorf("Conflicts = %#v", got)
	}
	if got := tr.TeamFiles("nope"); got == nil || len(got) != 0 {
		t.Errorf("TeamFiles = %#v", got)
	}
	if got := tr.ReleaseTeammateFiles("nope", "a"); len(got) != 0 {
		t.Errorf("ReleaseTeammateFiles = %#v", got)
	}
}

func TestExemptPatternsAndRoot(t *testing.T) {
	tr, _ := newTestTracker(t,
		WithRoot("/work/repo"),
		WithExemptPatterns("*.lock", "package-lock.json", "**/generated/**", "[bad"),
	)

	for _, p := range []string{"yarn.lock", "web/package-lock.json", "api/generated/types.go"} {
		tr.RecordModification("team", "a", "Alice", p)
		if c := tr.RecordModification("team", "b", "Bob", p); c != nil {
			t.Errorf("exempt path %q conflicted", p)
		}
	}

	tr.RecordModification("team", "a", "Alice", "/work/repo/src/index.ts")
	if c := tr.RecordModification("team", "b", "Bob", "src/index.ts"); c == nil {
		t.Error("absolute and relative forms should be the same file")
	}
	if n := len(tr.TeamFiles("team")); n != 1 {
		t.Errorf("TeamFiles = %d entries, want 1", n)
	}
}

func TestTrackerConcurrentWriters(t *testing.T) {
	tr, _ := newTestTracker(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	conflicts := 0
	for i := range 10 {
		wg.Go(func() {
			id := string(rune('a' + i))
			if c := tr.RecordModification("team", id, id, "shared.go"); c != nil {
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if conflicts != 9 {
		t.Errorf("conflicts = %d, want 9", conflicts)
	}
	tr.ClearTeam("team")
	if len(tr.TeamFiles("team")) != 0 {
		t.Error("ClearTeam should drop files")
	}
}
