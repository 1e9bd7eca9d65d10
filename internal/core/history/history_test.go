package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAddAndList(t *testing.T) {
	db := openTemp(t)
	base := time.Unix(1700000000, 0)

	first := &Record{
		VideoID:     "BV1xx411c7mD",
		Page:        1,
		Title:       "Intro",
		Path:        "/tmp/x/Intro.mp4",
		Quality:     80,
		Status:      StatusCompleted,
		SizeBytes:   2048,
		StartedAt:   base,
		CompletedAt: base.Add(3 * time.Second),
	}
	second := &Record{
		VideoID:     "BV1xx411c7mD",
		Page:        2,
		Title:       "Outro",
		Status:      StatusFailed,
		StartedAt:   base.Add(5 * time.Second),
		CompletedAt: base.Add(6 * time.Second),
		Error:       "incomplete stream set",
	}
	require.NoError(t, db.Add(first))
	require.NoError(t, db.Add(second))
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	records, total, err := db.List(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 2)

	// newest first
	assert.Equal(t, 2, records[0].Page)
	assert.Equal(t, StatusFailed, records[0].Status)
	assert.Equal(t, "incomplete stream set", records[0].Error)
	assert.Equal(t, "Intro", records[1].Title)
	assert.Equal(t, int64(2048), records[1].SizeBytes)
	assert.Equal(t, 3*time.Second, records[1].Duration())

	page, total, err := db.List(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)
}

func TestStats(t *testing.T) {
	db := openTemp(t)
	now := time.Unix(1700000000, 0)

	for _, r := range []*Record{
		{VideoID: "a", Page: 1, Status: StatusCompleted, SizeBytes: 100, StartedAt: now, CompletedAt: now},
		{VideoID: "a", Page: 2, Status: StatusCompleted, SizeBytes: 50, StartedAt: now, CompletedAt: now},
		{VideoID: "b", Page: 1, Status: StatusFailed, SizeBytes: 999, StartedAt: now, CompletedAt: now},
	} {
		require.NoError(t, db.Add(r))
	}

	s, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Completed: 2, Failed: 1, TotalBytes: 150}, s)
}

func TestDeleteAndClear(t *testing.T) {
	db := openTemp(t)
	now := time.Unix(1700000000, 0)

	r := &Record{VideoID: "a", Page: 1, Status: StatusCompleted, StartedAt: now, CompletedAt: now}
	require.NoError(t, db.Add(r))
	require.NoError(t, db.Add(&Record{VideoID: "a", Page: 2, Status: StatusCompleted, StartedAt: now, CompletedAt: now}))

	require.NoError(t, db.Delete(r.ID))
	assert.ErrorIs(t, db.Delete(r.ID), ErrNotFound)

	n, err := db.Clear()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, total, err := db.List(10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestOpenDefaultUsesConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BILIGET_CONFIG_DIR", dir)

	db, err := OpenDefault()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.FileExists(t, filepath.Join(dir, historyDBFile))
}
