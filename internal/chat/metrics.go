package chat

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts reconciliation outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	sent       prometheus.Counter
	failed     prometheus.Counter
	retried    prometheus.Counter
	duplicates prometheus.Counter
	foreign    prometheus.Counter
	pages      *prometheus.CounterVec
	uploads    prometheus.Histogram
}

// NewMetrics registers the chat collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "chat", Name: "messages_sent_total",
			Help: "Messages confirmed by the server.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "chat", Name: "send_failures_total",
			Help: "Sends and uploads that failed.",
		}),
		retried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "chat", Name: "send_retries_total",
			Help: "Failed messages retried by the user.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "chat", Name: "duplicate_deliveries_total",
			Help: "Deliveries that matched a record already held.",
		}),
		foreign: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "chat", Name: "foreign_events_dropped_total",
			Help: "Socket messages dropped because they belong to another conversation.",
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mesh", Subsystem: "chat", Name: "history_pages_total",
			Help: "History page fetches by result.",
		}, []string{"result"}),
		uploads: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mesh", Subsystem: "chat", Name: "voice_note_bytes",
			Help:    "Size of uploaded voice notes.",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sent, m.failed, m.retried, m.duplicates, m.foreign, m.pages, m.uploads)
	}
	return m
}

func (m *Metrics) messageSent() {
	if m != nil {
		m.sent.Inc()
	}
}

func (m *Metrics) sendFailed() {
	if m != nil {
		m.failed.Inc()
	}
}

func (m *Metrics) sendRetried() {
	if m != nil {
		m.retried.Inc()
	}
}

func (m *Metrics) duplicate() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) foreignDropped() {
	if m != nil {
		m.foreign.Inc()
	}
}

func (m *Metrics) historyPage(result string) {
	if m != nil {
		m.pages.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) voiceNote(size int) {
	if m != nil {
		m.uploads.Observe(float64(size))
	}
}
