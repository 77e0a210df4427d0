package observability

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// SlogObserver writes events to a slog.Logger. The event type is the
// message, Source becomes the "source" attribute and Data keys follow in
// sorted order. Records carry the event's own timestamp.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver that emits to the given logger.
// A nil logger falls back to slog.Default.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	level := event.Level.SlogLevel()
	handler := o.logger.Handler()
	if !handler.Enabled(ctx, level) {
		return
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	record := slog.NewRecord(ts, level, string(event.Type), 0)
	record.AddAttrs(slog.String("source", event.Source))

	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		record.AddAttrs(slog.Any(k, event.Data[k]))
	}

	_ = handler.Handle(ctx, record)
}
