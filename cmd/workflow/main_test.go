package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/workflow/config"
)

const testConfig = `
observer: noop
source:
  marking_store: sqlite
workflows:
  leave:
    supports: [hr.LeaveRequest]
    places:
      Draft: draft
      Submitted: submitted
    transitions:
      submit:
        title: Submit
        from: draft
        to: submitted
`

func TestImportThenLoadFromDatabase(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o600))
	dbPath := filepath.Join(dir, "workflow.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	cfg, err := loadConfig(configPath)
	require.NoError(t, err)

	app, err := setup(ctx, cfg, options{dbPath: dbPath, metrics: prometheus.NewRegistry(), logger: logger})
	require.NoError(t, err)
	require.NoError(t, importWorkflows(ctx, app.store, cfg.Workflows, logger))
	require.NoError(t, importWorkflows(ctx, app.store, cfg.Workflows, logger), "existing workflows are skipped")
	app.close()

	stored := config.DefaultFile()
	stored.Observer = "noop"
	stored.Source = cfg.Source
	app, err = setup(ctx, &stored, options{dbPath: dbPath, metrics: prometheus.NewRegistry(), logger: logger})
	require.NoError(t, err)
	defer app.close()

	assert.Equal(t, []string{"leave"}, app.registry.Names())
	exported, err := app.registry.Export("leave")
	require.NoError(t, err)
	assert.Equal(t, []string{"draft", "submitted"}, exported.PlaceNames())
	assert.Equal(t, "Draft", exported.Label("draft"))
	assert.Equal(t, "sqlite", exported.MarkingStore.Class)
	assert.Equal(t, "Submit", exported.Transitions[0].Title)

	wf, err := app.registry.Workflow("leave")
	require.NoError(t, err)
	assert.NotNil(t, wf.MarkingStore())

	require.NoError(t, dump(app.registry, "leave", "draft"))
	assert.Error(t, dump(app.registry, "leave", "nowhere"))
	assert.Error(t, dump(app.registry, "missing", ""))
}

func TestSetup_UnknownObserver(t *testing.T) {
	cfg := config.DefaultFile()
	cfg.Observer = "nope"

	_, err := setup(context.Background(), &cfg, options{metrics: prometheus.NewRegistry(), logger: slog.Default()})
	assert.ErrorContains(t, err, "unknown observer: nope")
}

func TestImportThenLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o600))
	storeDir := filepath.Join(dir, "workflows")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	cfg, err := loadConfig(configPath)
	require.NoError(t, err)
	cfg.Source.MarkingStore = ""

	app, err := setup(ctx, cfg, options{dirPath: storeDir, metrics: prometheus.NewRegistry(), logger: logger})
	require.NoError(t, err)
	require.NotNil(t, app.target())
	require.NoError(t, importWorkflows(ctx, app.target(), cfg.Workflows, logger))
	app.close()
	assert.FileExists(t, filepath.Join(storeDir, "leave.yaml"))

	stored := config.DefaultFile()
	stored.Observer = "noop"
	app, err = setup(ctx, &stored, options{dirPath: storeDir, metrics: prometheus.NewRegistry(), logger: logger})
	require.NoError(t, err)
	defer app.close()

	assert.Equal(t, []string{"leave"}, app.registry.Names())
	assert.Equal(t, []string{"hr.LeaveRequest"}, app.registry.Supports("leave"))
}

func TestRun_ReturnsErrors(t *testing.T) {
	cfg := config.DefaultFile()
	cfg.Observer = "noop"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	app, err := setup(ctx, &cfg, options{metrics: prometheus.NewRegistry(), logger: logger})
	require.NoError(t, err)
	defer app.close()

	opts := runOptions{metrics: prometheus.NewRegistry(), logger: logger}

	tests := []struct {
		name    string
		command string
		args    []string
		usage   bool
	}{
		{name: "unknown command", command: "frobnicate", usage: true},
		{name: "dump without name", command: "dump", usage: true},
		{name: "dump unknown workflow", command: "dump", args: []string{"missing"}},
		{name: "import without target", command: "import", usage: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(ctx, tt.command, tt.args, app, &cfg, opts)
			require.Error(t, err)
			assert.Equal(t, tt.usage, errors.Is(err, errUsage), err.Error())
		})
	}

	assert.NoError(t, run(ctx, "list", nil, app, &cfg, opts))
}
