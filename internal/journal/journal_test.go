package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestPutGet_Roundtrip(t *testing.T) {
	j := openTestJournal(t)

	started := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	ended := started.Add(time.Hour)
	entry := &Entry{
		ID:            "abc-123",
		Mode:          "TCP",
		DatabasePath:  "/data/plc_data_2024-01-15_config-deadbeef.db",
		ConfigHash:    "deadbeef",
		StartedAt:     started,
		EndedAt:       &ended,
		RecordsLogged: 17,
		LastError:     "read timeout",
	}
	require.NoError(t, j.Put(entry))

	got, err := j.Get("abc-123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Mode, got.Mode)
	assert.Equal(t, entry.ConfigHash, got.ConfigHash)
	assert.Equal(t, entry.RecordsLogged, got.RecordsLogged)
	assert.Equal(t, entry.LastError, got.LastError)
	assert.True(t, got.StartedAt.Equal(started))
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.EndedAt.Equal(ended))
}

func TestGet_MissingReturnsNil(t *testing.T) {
	j := openTestJournal(t)

	got, err := j.Get("no-such-session")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPut_UpdatesExistingEntry(t *testing.T) {
	j := openTestJournal(t)

	entry := &Entry{ID: "s1", Mode: "TCP", StartedAt: time.Now()}
	require.NoError(t, j.Put(entry))

	entry.RecordsLogged = 5
	require.NoError(t, j.Put(entry))

	got, err := j.Get("s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.RecordsLogged)

	entries, err := j.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestList_NewestFirst(t *testing.T) {
	j := openTestJournal(t)

	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Put(&Entry{ID: "old", StartedAt: base}))
	require.NoError(t, j.Put(&Entry{ID: "newest", StartedAt: base.Add(2 * time.Hour)}))
	require.NoError(t, j.Put(&Entry{ID: "middle", StartedAt: base.Add(time.Hour)}))

	entries, err := j.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "newest", entries[0].ID)
	assert.Equal(t, "middle", entries[1].ID)
	assert.Equal(t, "old", entries[2].ID)
}
