package events

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink counts events by type
type MetricsSink struct {
	total   *prometheus.CounterVec
	tipped  prometheus.Counter
	credits prometheus.Counter
}

// NewMetricsSink registers its collectors with reg
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	f := promauto.With(reg)
	return &MetricsSink{
		total: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tipbot_events_total",
			Help: "Handled command outcomes by event type",
		}, []string{"type"}),
		tipped: f.NewCounter(prometheus.CounterOpts{
			Name: "tipbot_tipped_xlm_total",
			Help: "XLM moved between accounts by tips",
		}),
		credits: f.NewCounter(prometheus.CounterOpts{
			Name: "tipbot_deposited_xlm_total",
			Help: "XLM credited from on-chain deposits",
		}),
	}
}

// Handle is a bus Handler
func (m *MetricsSink) Handle(e Event) {
	m.total.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case TipSuccess:
		m.tipped.Add(e.Amount.InexactFloat64())
	case DepositSuccess:
		m.credits.Add(e.Amount.InexactFloat64())
	}
}

// LogSink writes every event at debug level
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a log sink
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Handle is a bus Handler
func (l *LogSink) Handle(e Event) {
	attrs := []any{"type", e.Type}
	if e.Command.Hash != "" {
		attrs = append(attrs, "hash", e.Command.Hash, "unique_id", e.Command.UniqueID)
	}
	if !e.Amount.IsZero() {
		attrs = append(attrs, "amount", e.Amount.String())
	}
	if e.Count > 0 {
		attrs = append(attrs, "count", e.Count)
	}
	l.log.Debug("event", attrs...)
}
