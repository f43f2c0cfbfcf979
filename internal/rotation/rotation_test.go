package rotation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFile(t *testing.T, metros []string, cursor int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rotation.json")
	require.NoError(t, Save(path, &State{Metros: metros, Cursor: cursor}))
	return path
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "rotation.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metros import")
}

func TestLoadEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotation.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metros":[],"cursor":0}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadClampsCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotation.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metros":["A","B","C"],"cursor":7}`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Cursor)
}

func TestConsumeRoundRobin(t *testing.T) {
	path := seedFile(t, []string{"Nashville, TN", "Memphis, TN", "Knoxville, TN"}, 0)

	var got []string
	for i := 0; i < 5; i++ {
		metro, err := Consume(path)
		require.NoError(t, err)
		got = append(got, metro)
	}

	// Wraps mod list length.
	assert.Equal(t, []string{
		"Nashville, TN", "Memphis, TN", "Knoxville, TN",
		"Nashville, TN", "Memphis, TN",
	}, got)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Cursor)
}

func TestConsumePersistsBeforeReturn(t *testing.T) {
	path := seedFile(t, []string{"A", "B"}, 0)

	_, err := Consume(path)
	require.NoError(t, err)

	// The advance is already durable: a second process sees the moved cursor.
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Cursor)
	assert.Equal(t, "B", s.Current())
}

func TestReseedFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotation.json")

	s, err := Reseed(path, []string{"Nashville, TN", " Memphis, TN ", "nashville, tn", ""})
	require.NoError(t, err)

	// Dedup is case-insensitive, order preserved, blanks dropped.
	assert.Equal(t, []string{"Nashville, TN", "Memphis, TN"}, s.Metros)
	assert.Equal(t, 0, s.Cursor)
}

func TestReseedPreservesCursorMetro(t *testing.T) {
	path := seedFile(t, []string{"A", "B", "C"}, 1) // next up: B

	s, err := Reseed(path, []string{"X", "B", "Y"})
	require.NoError(t, err)

	// B survived the reload, so it is still next.
	assert.Equal(t, 1, s.Cursor)
	assert.Equal(t, "B", s.Current())
}

func TestReseedCursorResetWhenMetroGone(t *testing.T) {
	path := seedFile(t, []string{"A", "B", "C"}, 1)

	s, err := Reseed(path, []string{"X", "Y"})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Cursor)
}

func TestReseedEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotation.json")
	_, err := Reseed(path, []string{"", "   "})
	assert.Error(t, err)
}

func TestSaveAtomic(t *testing.T) {
	path := seedFile(t, []string{"A"}, 0)

	// No stray temp file after save.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
