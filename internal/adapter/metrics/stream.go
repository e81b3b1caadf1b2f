package metrics

import "github.com/prometheus/client_golang/prometheus"

// StreamMetrics covers the live entry feed: subscribers, fan-out and the watcher polling behind it.
type StreamMetrics struct {
	ActiveEvents        prometheus.Gauge
	Subscribers         *prometheus.GaugeVec
	MessagesPublished   prometheus.Counter
	MessagesDelivered   prometheus.Counter
	SendDuration        prometheus.Histogram
	SubscribersEvicted  *prometheus.CounterVec
	SubscribersRejected prometheus.Counter
	PingFailures        prometheus.Counter
	CommandQueueDepth   prometheus.Gauge
	BroadcasterPanics   prometheus.Counter
	WatcherPolls        *prometheus.CounterVec
	WatchedEvents       prometheus.Gauge
}

func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		ActiveEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_events",
			Help:      "Number of events with at least one live subscriber.",
		}),
		Subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Number of connected live feed subscribers, by transport.",
		}, []string{"transport"}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_published_total",
			Help:      "Total number of entry messages published to events.",
		}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_delivered_total",
			Help:      "Total number of messages written to subscribers.",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "send_duration_seconds",
			Help:      "Time spent writing one message to one subscriber.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		SubscribersEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers_evicted_total",
			Help:      "Total number of subscribers dropped by the server, by reason.",
		}, []string{"reason"}),
		SubscribersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers_rejected_total",
			Help:      "Total number of subscriptions refused because the event was at capacity.",
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ping_failures_total",
			Help:      "Total number of failed keepalive writes.",
		}),
		CommandQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "command_queue_depth",
			Help:      "Pending commands in the broadcaster queue.",
		}),
		BroadcasterPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "broadcaster_panics_total",
			Help:      "Total number of recovered broadcaster panics.",
		}),
		WatcherPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "watcher_polls_total",
			Help:      "Total number of entry polls, by result.",
		}, []string{"result"}),
		WatchedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "watched_events",
			Help:      "Number of events currently polled for new entries.",
		}),
	}

	reg.MustRegister(m.ActiveEvents, m.Subscribers, m.MessagesPublished, m.MessagesDelivered, m.SendDuration,
		m.SubscribersEvicted, m.SubscribersRejected, m.PingFailures, m.CommandQueueDepth, m.BroadcasterPanics,
		m.WatcherPolls, m.WatchedEvents)
	return m
}
