package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factsheet/internal/factsheet"
	"factsheet/internal/scrape"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history", "factsheet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fields(t *testing.T, raw string) *factsheet.Structured {
	t.Helper()
	return factsheet.NewStructured(factsheet.Reconstruct(raw))
}

func TestStore_SaveGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	e := &Entry{
		ID:           "job-1",
		CreatedAt:    created,
		Parent:       "Medical Health",
		Organisation: "District Hospital",
		LastField:    "UP123",
		OK:           true,
		Fields:       fields(t, "2. eHRMS Code UP123 1. Name Ram & Sons"),
		SavedPath:    "/tmp/ram.json",
	}
	require.NoError(t, s.Save(ctx, e))
	assert.Equal(t, 2, e.FieldCount)

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Equal(t, "District Hospital", got.Organisation)
	assert.Equal(t, "UP123", got.LastField)
	assert.True(t, got.OK)
	assert.False(t, got.Degraded)
	assert.Equal(t, 2, got.FieldCount)
	assert.Equal(t, "/tmp/ram.json", got.SavedPath)
	assert.Equal(t, []string{"1", "2"}, got.Fields.Keys())

	f, ok := got.Fields.Get("1")
	require.True(t, ok)
	assert.Equal(t, "Ram & Sons", f.Value)
}

func TestStore_GetUnknown(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveFillsIDAndTime(t *testing.T) {
	s := openTestStore(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	e := &Entry{Parent: "P", Organisation: "O", OK: true}
	require.NoError(t, s.Save(context.Background(), e))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, fixed, e.CreatedAt)
	assert.Equal(t, 0, e.FieldCount)

	got, err := s.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Fields.Len())
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, &Entry{
			ID:           id,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			Parent:       "P",
			Organisation: "O",
			OK:           true,
		}))
	}

	entries, err := s.List(ctx, 2)
	require.NoError(t, err)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if diff := cmp.Diff([]string{"c", "b"}, ids); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_ListEmpty(t *testing.T) {
	s := openTestStore(t)

	entries, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestStore_Record(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := scrape.Build("no anchors at all")
	result.ID = "job-9"
	path := "/srv/out/employee_fact_sheet.json"
	result.SavedPath = &path

	job := scrape.Job{Parent: "P", Organisation: "O", LastField: "X1"}
	require.NoError(t, s.Record(ctx, job, result))

	got, err := s.Get(ctx, "job-9")
	require.NoError(t, err)
	assert.True(t, got.Degraded)
	assert.Equal(t, "X1", got.LastField)
	assert.Equal(t, path, got.SavedPath)
}

func TestStore_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factsheet.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), &Entry{ID: "keep", Parent: "P", Organisation: "O"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(context.Background(), "keep")
	assert.NoError(t, err)
}
