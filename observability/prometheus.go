package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver counts events by type, source and level.
type PrometheusObserver struct {
	events *prometheus.CounterVec
}

// NewPrometheusObserver creates the counter and registers it with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workflow",
			Subsystem: "observability",
			Name:      "events_total",
			Help:      "Total number of diagnostic events emitted by the workflow library",
		},
		[]string{"type", "source", "level"},
	)

	if err := reg.Register(events); err != nil {
		return nil, err
	}

	return &PrometheusObserver{events: events}, nil
}

func (o *PrometheusObserver) OnEvent(ctx context.Context, event Event) {
	o.events.WithLabelValues(string(event.Type), event.Source, event.Level.String()).Inc()
}

// Counter exposes the underlying counter vector for scraping in tests and
// for callers that want to attach it to their own collectors.
func (o *PrometheusObserver) Counter() *prometheus.CounterVec {
	return o.events
}
