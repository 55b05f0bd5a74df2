// Package metrics exposes the Prometheus counters/gauges/histograms the
// core emits, adapted from the teacher's internal/metrics.Registry shape
// (one struct of promauto-constructed collectors plus typed setter
// methods) to this core's queue/dispatcher/session/executor surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric this adapter publishes.
type Registry struct {
	sendQueueDepth prometheus.Gauge
	recvQueueDepth prometheus.Gauge

	messagesDispatched *prometheus.CounterVec
	dispatchErrors     *prometheus.CounterVec

	sessionsConnected prometheus.Gauge
	sessionErrors      *prometheus.CounterVec

	subscriptionsActive prometheus.Gauge
	monitoredItems      prometheus.Gauge
	reportsDelivered    prometheus.Counter

	executorLatency *prometheus.HistogramVec
	executorErrors  *prometheus.CounterVec
}

// NewRegistry constructs and registers every collector with the default
// Prometheus registry.
func NewRegistry() *Registry {
	return &Registry{
		sendQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edge_adapter_send_queue_depth",
			Help: "Current depth of the dispatcher's send queue",
		}),
		recvQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edge_adapter_recv_queue_depth",
			Help: "Current depth of the dispatcher's receive queue",
		}),
		messagesDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_adapter_messages_dispatched_total",
			Help: "Total number of messages routed by the dispatcher, by type",
		}, []string{"type"}),
		dispatchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_adapter_dispatch_errors_total",
			Help: "Total number of messages rejected by dispatch validation",
		}, []string{"reason"}),
		sessionsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edge_adapter_sessions_connected",
			Help: "Current number of connected OPC-UA sessions",
		}),
		sessionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_adapter_session_errors_total",
			Help: "Total number of session connect/call failures, by endpoint",
		}, []string{"endpoint"}),
		subscriptionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edge_adapter_subscriptions_active",
			Help: "Current number of active server-side subscriptions",
		}),
		monitoredItems: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edge_adapter_monitored_items",
			Help: "Current number of monitored items across all subscriptions",
		}),
		reportsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edge_adapter_reports_delivered_total",
			Help: "Total number of Report messages delivered to the receive queue",
		}),
		executorLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edge_adapter_executor_latency_seconds",
			Help:    "Latency of executor service calls, by command",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		executorErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_adapter_executor_errors_total",
			Help: "Total number of executor service-call failures, by command",
		}, []string{"command"}),
	}
}

func (r *Registry) SetSendQueueDepth(n int)   { r.sendQueueDepth.Set(float64(n)) }
func (r *Registry) SetRecvQueueDepth(n int)   { r.recvQueueDepth.Set(float64(n)) }
func (r *Registry) IncMessagesDispatched(typ string) {
	r.messagesDispatched.WithLabelValues(typ).Inc()
}
func (r *Registry) IncDispatchError(reason string) {
	r.dispatchErrors.WithLabelValues(reason).Inc()
}
func (r *Registry) SetSessionsConnected(n int) { r.sessionsConnected.Set(float64(n)) }
func (r *Registry) IncSessionError(endpoint string) {
	r.sessionErrors.WithLabelValues(endpoint).Inc()
}
func (r *Registry) SetSubscriptionsActive(n int) { r.subscriptionsActive.Set(float64(n)) }
func (r *Registry) SetMonitoredItems(n int)      { r.monitoredItems.Set(float64(n)) }
func (r *Registry) IncReportsDelivered()         { r.reportsDelivered.Inc() }
func (r *Registry) ObserveExecutorLatency(command string, seconds float64) {
	r.executorLatency.WithLabelValues(command).Observe(seconds)
}
func (r *Registry) IncExecutorError(command string) {
	r.executorErrors.WithLabelValues(command).Inc()
}
