package metrics

import "github.com/prometheus/client_golang/prometheus"

// DrawMetrics tracks draws, entry intake and winner notifications.
type DrawMetrics struct {
	Draws          *prometheus.CounterVec
	DrawDuration   *prometheus.HistogramVec
	EntriesCreated prometheus.Counter
	ActiveSessions prometheus.Gauge
	Notifications  *prometheus.CounterVec
}

func NewDrawMetrics(reg prometheus.Registerer) *DrawMetrics {
	m := &DrawMetrics{
		Draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draw",
			Name:      "draws_total",
			Help:      "Total number of winner selections, by mode and result.",
		}, []string{"mode", "result"}),
		DrawDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "draw",
			Name:      "duration_seconds",
			Help:      "Duration of a draw including tally lookup and persistence, by mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		EntriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draw",
			Name:      "entries_created_total",
			Help:      "Total number of entries accepted.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "draw",
			Name:      "active_sessions",
			Help:      "Number of interactive draw sessions in progress.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draw",
			Name:      "notifications_total",
			Help:      "Total number of winner notifications, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Draws, m.DrawDuration, m.EntriesCreated, m.ActiveSessions, m.Notifications)
	return m
}
