package audit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/crew/internal/logging"
)

func openTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", FileName)
	l, err := Open(path, logging.DefaultRotationConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestLog_RecordAndRead(t *testing.T) {
	l, path := openTestLog(t)

	require.NoError(t, l.Record(Entry{TeamID: "t1", Type: "task:created", TaskID: "a", Data: map[string]any{"title": "x"}}))
	require.NoError(t, l.Record(Entry{TeamID: "t1", Type: "quality:result", TaskID: "a", CycleNumber: 2}))
	require.NoError(t, l.Record(Entry{TeamID: "t2", Type: "task:created", TaskID: "b"}))

	res, err := Read(path, Filter{TeamID: "t1"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "task:created", res.Entries[0].Type)
	assert.Equal(t, "x", res.Entries[0].Data["title"])
	assert.NotEmpty(t, res.Entries[0].ID)
	assert.False(t, res.Entries[0].Timestamp.IsZero())
	assert.Equal(t, 2, res.Entries[1].CycleNumber)
	assert.Equal(t, 0, res.Skipped)
}

func TestLog_RequiresType(t *testing.T) {
	l, _ := openTestLog(t)
	assert.Error(t, l.Record(Entry{TeamID: "t1"}))
}

func TestRead_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `{"timestamp":"2026-01-01T00:00:00Z","teamId":"t1","type":"team:created"}
not json at all
{"timestamp":"2026-01-01T00:00:01Z","teamId":"t1"}

{"timestamp":"2026-01-01T00:00:02Z","teamId":"t1","type":"team:cleanup"}
{"timestamp":"2026-01-01T00:00:03Z","teamId":"t1","type":"task:up`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res, err := Read(path, Filter{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "team:created", res.Entries[0].Type)
	assert.Equal(t, "team:cleanup", res.Entries[1].Type)
	assert.Equal(t, 3, res.Skipped)
}

func TestRead_Filters(t *testing.T) {
	l, path := openTestLog(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, typ := range []string{"task:created", "task:updated", "message:sent", "task:updated"} {
		require.NoError(t, l.Record(Entry{
			TeamID:     "t1",
			Type:       typ,
			TeammateID: "alice",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"types", Filter{Types: []string{"task:updated"}}, 2},
		{"since", Filter{Since: base.Add(2 * time.Minute)}, 2},
		{"limit keeps newest", Filter{Limit: 1}, 1},
		{"teammate", Filter{TeammateID: "bob"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Read(path, tt.filter)
			require.NoError(t, err)
			assert.Len(t, res.Entries, tt.want)
		})
	}

	res, _ := Read(path, Filter{Limit: 1})
	assert.Equal(t, base.Add(3*time.Minute), res.Entries[0].Timestamp.UTC())
}

func TestRead_MissingFile(t *testing.T) {
	res, err := Read(filepath.Join(t.TempDir(), "nope.jsonl"), Filter{})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
}

func TestLog_ConcurrentRecords(t *testing.T) {
	l, path := openTestLog(t)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			assert.NoError(t, l.Record(Entry{TeamID: "t1", Type: "activity", CycleNumber: i}))
		})
	}
	wg.Wait()

	res, err := Read(path, Filter{})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 50)
	assert.Zero(t, res.Skipped)
}
