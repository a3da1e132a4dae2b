package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() fare.Snapshot {
	observed := time.Date(2025, 12, 1, 6, 0, 0, 0, time.UTC)
	return fare.Snapshot{
		CheckedAt: observed,
		Current: []fare.Record{
			{Destination: "Athens", AmountMinor: 10560, CurrencyCode: "ZAR", ObservedAt: observed},
			{Destination: "Mykonos", AmountMinor: 9299, CurrencyCode: "ZAR", ObservedAt: observed},
		},
		Previous: []fare.Record{
			{Destination: "Athens", AmountMinor: 11200, CurrencyCode: "ZAR", ObservedAt: observed.Add(-24 * time.Hour)},
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "price-history.json"))
	snap := sampleSnapshot()

	require.NoError(t, store.Save(snap))

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, loaded)
}

func TestStore_FirstRun(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "price-history.json"))
	snap, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, snap.Current)
}

func TestStore_OmitsEmptyPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "price-history.json")
	store := NewStore(path)
	snap := sampleSnapshot()
	snap.Previous = nil

	require.NoError(t, store.Save(snap))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "previousPrices")

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, loaded.Previous)
}

func TestStore_CorruptDocument(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "price-history.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		_, _, err := NewStore(path).Load()
		var corrupt *CorruptError
		require.ErrorAs(t, err, &corrupt)
		assert.Equal(t, path, corrupt.Path)
	})

	t.Run("schema violation", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "price-history.json")
		doc := `{"lastChecked":"2025-12-01T06:00:00Z","prices":[{"destination":"Athens","price":"ZAR 10,560","priceNumeric":-5,"currency":"ZAR","timestamp":"2025-12-01T06:00:00Z"}]}`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		_, _, err := NewStore(path).Load()
		var corrupt *CorruptError
		require.ErrorAs(t, err, &corrupt)
	})

	t.Run("missing required field", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "price-history.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"prices":[]}`), 0o644))

		_, _, err := NewStore(path).Load()
		var corrupt *CorruptError
		require.ErrorAs(t, err, &corrupt)
	})

	t.Run("corrupt file is not silently replaced by load", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "price-history.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		_, _, err := NewStore(path).Load()
		require.Error(t, err)

		raw, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		assert.Equal(t, "{not json", string(raw))
	})
}

func TestStore_AtomicSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "price-history.json")
	store := NewStore(path)

	require.NoError(t, store.Save(sampleSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not survive a successful save")
	assert.Equal(t, "price-history.json", entries[0].Name())
}

func TestStore_SaveCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "nested", "price-history.json")
	store := NewStore(path)

	require.NoError(t, store.Save(sampleSnapshot()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestStore_DeterministicSerialization(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "price-history.json")
	store := NewStore(path)
	snap := sampleSnapshot()

	require.NoError(t, store.Save(snap))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(snap))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
