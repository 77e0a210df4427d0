package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/workflow/observability"
)

type recorder struct {
	events []observability.Event
}

func (r *recorder) OnEvent(ctx context.Context, event observability.Event) {
	r.events = append(r.events, event)
}

func TestLevel_Mapping(t *testing.T) {
	tests := []struct {
		level    observability.Level
		severity string
		slog     slog.Level
	}{
		{level: observability.LevelVerbose, severity: "DEBUG", slog: slog.LevelDebug},
		{level: observability.LevelInfo, severity: "INFO", slog: slog.LevelInfo},
		{level: observability.LevelWarning, severity: "WARN", slog: slog.LevelWarn},
		{level: observability.LevelError, severity: "ERROR", slog: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.severity, func(t *testing.T) {
			assert.Equal(t, tt.severity, tt.level.String())
			assert.Equal(t, tt.slog, tt.level.SlogLevel())
		})
	}

	assert.Equal(t, "TRACE", observability.Level(1).String())
	assert.Equal(t, "FATAL", observability.Level(21).String())
}

func TestLevel_SeverityNumbers(t *testing.T) {
	assert.EqualValues(t, 5, observability.LevelVerbose)
	assert.EqualValues(t, 9, observability.LevelInfo)
	assert.EqualValues(t, 13, observability.LevelWarning)
	assert.EqualValues(t, 17, observability.LevelError)
}

func TestMultiObserver(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	multi := observability.NewMultiObserver(nil, a, observability.NoOpObserver{}, b)
	require.Equal(t, 2, multi.Len())

	multi.OnEvent(context.Background(), observability.Event{Type: "registry.add", Source: "registry"})

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, observability.EventType("registry.add"), a.events[0].Type)
}

func TestMultiObserver_Flattens(t *testing.T) {
	rec := &recorder{}

	inner := observability.NewMultiObserver(rec, observability.NoOpObserver{})
	outer := observability.NewMultiObserver(inner, rec, (*observability.MultiObserver)(nil))
	require.Equal(t, 2, outer.Len())

	outer.OnEvent(context.Background(), observability.Event{Type: "registry.add"})
	assert.Len(t, rec.events, 2)
}

func TestSlogObserver_Levels(t *testing.T) {
	tests := []struct {
		name    string
		level   observability.Level
		minimum slog.Level
		logged  bool
	}{
		{name: "verbose at debug", level: observability.LevelVerbose, minimum: slog.LevelDebug, logged: true},
		{name: "verbose at info", level: observability.LevelVerbose, minimum: slog.LevelInfo, logged: false},
		{name: "info at warn", level: observability.LevelInfo, minimum: slog.LevelWarn, logged: false},
		{name: "warning at warn", level: observability.LevelWarning, minimum: slog.LevelWarn, logged: true},
		{name: "error at error", level: observability.LevelError, minimum: slog.LevelError, logged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: tt.minimum}))

			observability.NewSlogObserver(logger).OnEvent(context.Background(), observability.Event{
				Type:   "transition.blocked",
				Level:  tt.level,
				Source: "workflow.leave",
			})

			assert.Equal(t, tt.logged, buf.Len() > 0, buf.String())
		})
	}
}

func TestSlogObserver_Record(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	observability.NewSlogObserver(logger).OnEvent(context.Background(), observability.Event{
		Type:   "transition.complete",
		Level:  observability.LevelInfo,
		Source: "workflow.leave",
		Data:   map[string]any{"places": 2},
	})

	output := buf.String()
	assert.Contains(t, output, "msg=transition.complete")
	assert.Contains(t, output, "source=workflow.leave")
	assert.Contains(t, output, "places=2")
}

func TestSlogObserver_UsesEventTimestamp(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	observability.NewSlogObserver(logger).OnEvent(context.Background(), observability.Event{
		Type:      "registry.add",
		Level:     observability.LevelInfo,
		Timestamp: time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC),
		Source:    "registry",
		Data:      map[string]any{"workflow": "leave", "supports": "hr.LeaveRequest"},
	})

	output := buf.String()
	assert.Contains(t, output, `"time":"2026-01-02T03:04:05Z"`)
	assert.Less(t, strings.Index(output, `"supports"`), strings.Index(output, `"workflow"`))
}

func TestGetObserver(t *testing.T) {
	for _, name := range []string{"noop", "slog"} {
		obs, err := observability.GetObserver(name)
		require.NoError(t, err, name)
		assert.NotNil(t, obs, name)
	}

	_, err := observability.GetObserver("nonexistent")
	assert.EqualError(t, err, "unknown observer: nonexistent")
	assert.Contains(t, observability.ObserverNames(), "noop")
}

func TestGetObserver_List(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	observability.RegisterObserver("test-first", first)
	observability.RegisterObserver("test-second", second)

	obs, err := observability.GetObserver("test-first, test-second")
	require.NoError(t, err)
	obs.OnEvent(context.Background(), observability.Event{Type: "registry.load"})

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)

	_, err = observability.GetObserver("test-first,missing")
	assert.EqualError(t, err, "unknown observer: missing")
}

func TestRegisterObserver_RejectsComma(t *testing.T) {
	assert.Panics(t, func() {
		observability.RegisterObserver("a,b", observability.NoOpObserver{})
	})
}

func TestEmit(t *testing.T) {
	rec := &recorder{}
	observability.Emit(context.Background(), rec, observability.Event{Type: "transition.blocked"})

	require.Len(t, rec.events, 1)
	assert.False(t, rec.events[0].Timestamp.IsZero())

	stamped := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	observability.Emit(context.Background(), rec, observability.Event{Type: "transition.blocked", Timestamp: stamped})
	assert.Equal(t, stamped, rec.events[1].Timestamp)

	observability.Emit(context.Background(), nil, observability.Event{Type: "registry.add"})
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()

	obs, err := observability.NewPrometheusObserver(reg)
	require.NoError(t, err)

	for range 3 {
		obs.OnEvent(context.Background(), observability.Event{
			Type:   "transition.complete",
			Level:  observability.LevelInfo,
			Source: "workflow.leave",
		})
	}
	obs.OnEvent(context.Background(), observability.Event{
		Type:   "transition.blocked",
		Level:  observability.LevelWarning,
		Source: "workflow.leave",
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(obs.Counter().WithLabelValues("transition.complete", "workflow.leave", "INFO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.Counter().WithLabelValues("transition.blocked", "workflow.leave", "WARN")))

	_, err = observability.NewPrometheusObserver(reg)
	assert.Error(t, err, "registering the counter twice")
}
