package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/workflow/storage"
	"github.com/tailored-agentic-units/workflow/storage/filestore"
)

func ticket(name string, createdAt time.Time) storage.WorkflowRecord {
	return storage.WorkflowRecord{
		Name:       name,
		Supports:   []string{"support.Ticket"},
		StartPlace: "open",
		Places: []storage.PlaceRecord{
			{Name: "open", Label: "Open"},
			{Name: "closed", Label: "Closed"},
		},
		FinalPlace: "closed",
		LastPlaces: []string{"closed"},
		Extra:      map[string]any{"queue": "tier1"},
		Transitions: []storage.TransitionRecord{
			{Name: "close", Label: "Close", From: []string{"open"}, To: []string{"closed"}, Permission: "ticket.close"},
		},
		CreatedAt: createdAt,
	}
}

func TestStore_CreateGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "workflows")
	store := filestore.New(dir)
	ctx := context.Background()
	now := time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateWorkflow(ctx, ticket("ticket", now)))
	assert.FileExists(t, filepath.Join(dir, "ticket.yaml"))

	got, err := store.GetWorkflow(ctx, "ticket")
	require.NoError(t, err)

	want := ticket("ticket", now)
	want.UpdatedAt = now
	assert.Equal(t, want, got)

	err = store.CreateWorkflow(ctx, ticket("ticket", now))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestStore_List(t *testing.T) {
	dir := t.TempDir()
	store := filestore.New(dir)
	ctx := context.Background()
	base := time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateWorkflow(ctx, ticket("later", base.Add(time.Hour))))
	require.NoError(t, store.CreateWorkflow(ctx, ticket("earlier", base)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.yaml"), []byte("{"), 0o644))

	records, err := store.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "earlier", records[0].Name)
	assert.Equal(t, "later", records[1].Name)
}

func TestStore_ListMissingRoot(t *testing.T) {
	store := filestore.New(filepath.Join(t.TempDir(), "absent"))

	records, err := store.ListWorkflows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_NameFromFile(t *testing.T) {
	dir := t.TempDir()
	content := "start_place: open\nplaces:\n  - name: open\ntransitions: []\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "handwritten.yaml"), []byte(content), 0o644))

	got, err := filestore.New(dir).GetWorkflow(context.Background(), "handwritten")
	require.NoError(t, err)
	assert.Equal(t, "handwritten", got.Name)
	assert.Equal(t, "open", got.StartPlace)
}

func TestStore_Errors(t *testing.T) {
	store := filestore.New(t.TempDir())
	ctx := context.Background()

	_, err := store.GetWorkflow(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.DeleteWorkflow(ctx, "missing"), storage.ErrNotFound)

	_, err = store.GetWorkflow(ctx, "../escape")
	assert.Error(t, err)

	record := ticket("nostart", time.Now())
	record.StartPlace = ""
	assert.Error(t, store.CreateWorkflow(ctx, record))
}

func TestStore_Delete(t *testing.T) {
	store := filestore.New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.CreateWorkflow(ctx, ticket("ticket", time.Now())))
	require.NoError(t, store.DeleteWorkflow(ctx, "ticket"))

	_, err := store.GetWorkflow(ctx, "ticket")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
