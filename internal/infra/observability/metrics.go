package observability

import (
	"time"

	"github.com/donahelp/fluxo-sync-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the sync server.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	mutationsTotal   *prometheus.CounterVec
	mutationErrors   *prometheus.CounterVec
	eventsBroadcast  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	connectedClients prometheus.Gauge
}

// Mutation operation labels.
const (
	OpAddTransaction     = "add_transaction"
	OpDeleteTransaction  = "delete_transaction"
	OpUpdateServicePrice = "update_service_price"
	OpUpdateSetting      = "update_setting"
)

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluxo_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		mutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxo_mutations_total",
				Help: "Total ledger mutations applied, by operation.",
			},
			[]string{"operation"},
		),
		mutationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxo_mutation_errors_total",
				Help: "Total ledger mutations rejected or failed, by operation.",
			},
			[]string{"operation"},
		),
		eventsBroadcast: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxo_events_broadcast_total",
				Help: "Total events fanned out to connected clients, by event.",
			},
			[]string{"event"},
		),
		eventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxo_events_dropped_total",
				Help: "Total events dropped because a client buffer was full.",
			},
			[]string{"event"},
		),
		connectedClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fluxo_connected_clients",
				Help: "Clients currently subscribed to the event stream.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrMutation increments the applied-mutation counter for an operation.
func (m *Metrics) IncrMutation(operation string) {
	m.mutationsTotal.WithLabelValues(operation).Inc()
}

// IncrMutationError increments the failed-mutation counter for an operation.
func (m *Metrics) IncrMutationError(operation string) {
	m.mutationErrors.WithLabelValues(operation).Inc()
}

// IncrEventBroadcast records a successful fan-out of one event to one client.
func (m *Metrics) IncrEventBroadcast(event string) {
	m.eventsBroadcast.WithLabelValues(event).Inc()
}

// IncrEventDropped records an event discarded for a slow client.
func (m *Metrics) IncrEventDropped(event string) {
	m.eventsDropped.WithLabelValues(event).Inc()
}

// ClientConnected increments the connected-clients gauge.
func (m *Metrics) ClientConnected() { m.connectedClients.Inc() }

// ClientDisconnected decrements the connected-clients gauge.
func (m *Metrics) ClientDisconnected() { m.connectedClients.Dec() }

// GetSyncSnapshot returns a snapshot of sync activity suitable for the
// GET /v1/sync/stats endpoint.
func (m *Metrics) GetSyncSnapshot() *domain.SyncStats {
	// Prometheus counters expose cumulative values since process start.
	broadcast := getCounterValue(m.eventsBroadcast, domain.EventTransactionAdded) +
		getCounterValue(m.eventsBroadcast, domain.EventTransactionDeleted) +
		getCounterValue(m.eventsBroadcast, domain.EventServicePriceUpdated) +
		getCounterValue(m.eventsBroadcast, domain.EventSettingUpdated)
	dropped := getCounterValue(m.eventsDropped, domain.EventTransactionAdded) +
		getCounterValue(m.eventsDropped, domain.EventTransactionDeleted) +
		getCounterValue(m.eventsDropped, domain.EventServicePriceUpdated) +
		getCounterValue(m.eventsDropped, domain.EventSettingUpdated)

	return &domain.SyncStats{
		TransactionsAdded:   int64(getCounterValue(m.mutationsTotal, OpAddTransaction)),
		TransactionsDeleted: int64(getCounterValue(m.mutationsTotal, OpDeleteTransaction)),
		PriceUpdates:        int64(getCounterValue(m.mutationsTotal, OpUpdateServicePrice)),
		SettingUpdates:      int64(getCounterValue(m.mutationsTotal, OpUpdateSetting)),
		EventsBroadcast:     int64(broadcast),
		EventsDropped:       int64(dropped),
		ConnectedClients:    int64(getGaugeValue(m.connectedClients)),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// getGaugeValue extracts the current float64 value from a Gauge.
func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil && m.Gauge.Value != nil {
		return *m.Gauge.Value
	}
	return 0
}
