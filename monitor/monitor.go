// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlineConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	RoomsStarted      prometheus.Counter
	RoomsEnded        prometheus.Counter
	TurnTimeouts      prometheus.Counter
	SendFailures      prometheus.Counter
	MessagesReceived  prometheus.Counter
	MessageLatency    prometheus.Histogram
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_connections",
			Help:      "Number of open client connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of rooms with a game in progress",
		}),
		RoomsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_started_total",
			Help:      "Rooms that started a game",
		}),
		RoomsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_ended_total",
			Help:      "Rooms that reached game over",
		}),
		TurnTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_timeouts_total",
			Help:      "Decisions resolved by the server after the timeout",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound messages dropped because a connection was full or closed",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	reg.MustRegister(
		m.OnlineConnections,
		m.ActiveRooms,
		m.RoomsStarted,
		m.RoomsEnded,
		m.TurnTimeouts,
		m.SendFailures,
		m.MessagesReceived,
		m.MessageLatency,
	)

	return m
}

// Monitor is nil-safe: every method on a nil *Monitor is a no-op, so components
// can run without metrics in tests.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
	publishOnce  sync.Once
}

func NewMonitor(namespace string) *Monitor {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return &Monitor{
		metrics:   NewMetrics(namespace, registry),
		registry:  registry,
		startTime: time.Now(),
	}
}

// Handler serves /metrics and /debug/vars.
func (m *Monitor) Handler() http.Handler {
	m.publishOnce.Do(func() {
		// expvar names are process global
		if expvar.Get("uptime") == nil {
			expvar.Publish("uptime", expvar.Func(func() interface{} {
				return time.Since(m.startTime).Seconds()
			}))
		}
		if expvar.Get("requests") == nil {
			expvar.Publish("requests", expvar.Func(func() interface{} {
				m.mutex.Lock()
				defer m.mutex.Unlock()
				return m.requestCount
			}))
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

// Gatherer exposes the registry, mainly for tests.
func (m *Monitor) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Monitor) IncOnlineConnections() {
	if m == nil {
		return
	}
	m.metrics.OnlineConnections.Inc()
}

func (m *Monitor) DecOnlineConnections() {
	if m == nil {
		return
	}
	m.metrics.OnlineConnections.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	if m == nil {
		return
	}
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncRoomsStarted() {
	if m == nil {
		return
	}
	m.metrics.RoomsStarted.Inc()
}

func (m *Monitor) IncRoomsEnded() {
	if m == nil {
		return
	}
	m.metrics.RoomsEnded.Inc()
}

func (m *Monitor) IncTurnTimeouts() {
	if m == nil {
		return
	}
	m.metrics.TurnTimeouts.Inc()
}

func (m *Monitor) IncSendFailures() {
	if m == nil {
		return
	}
	m.metrics.SendFailures.Inc()
}

func (m *Monitor) IncMessagesReceived() {
	if m == nil {
		return
	}
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.MessageLatency.Observe(duration.Seconds())
}
