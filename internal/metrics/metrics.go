// Package metrics exposes the booth's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use through a nil pointer; every method is a no-op then.
type Metrics struct {
	salesTotal          *prometheus.CounterVec
	remoteOrdersTotal   *prometheus.CounterVec
	inconsistentStates  prometheus.Counter
	fraudAlerts         prometheus.Counter
	pendingRemoteOrders prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		salesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bingopos_sales_total",
				Help: "Sales recorded, by payment method",
			},
			[]string{"payment_method"},
		),
		remoteOrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bingopos_remote_orders_total",
				Help: "Remote order lifecycle events",
			},
			[]string{"event"},
		),
		inconsistentStates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bingopos_inconsistent_states_total",
			Help: "Remote orders whose sale was recorded but whose status could not be flipped",
		}),
		fraudAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bingopos_fraud_alerts_total",
			Help: "Sales flagged by the post-sale fraud check",
		}),
		pendingRemoteOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bingopos_pending_remote_orders",
			Help: "Remote orders waiting for payment verification",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bingopos_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bingopos_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.salesTotal,
			m.remoteOrdersTotal,
			m.inconsistentStates,
			m.fraudAlerts,
			m.pendingRemoteOrders,
			m.httpRequestsTotal,
			m.httpRequestDuration,
		)
	}
	return m
}

func (m *Metrics) SaleRecorded(paymentMethod string) {
	if m == nil {
		return
	}
	m.salesTotal.WithLabelValues(paymentMethod).Inc()
}

// RemoteOrderEvent counts created, updated, completed, cancelled, expired,
// rejected and failed orders.
func (m *Metrics) RemoteOrderEvent(event string) {
	if m == nil {
		return
	}
	m.remoteOrdersTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) InconsistentState() {
	if m == nil {
		return
	}
	m.inconsistentStates.Inc()
}

func (m *Metrics) FraudAlert() {
	if m == nil {
		return
	}
	m.fraudAlerts.Inc()
}

func (m *Metrics) SetPendingRemoteOrders(n int) {
	if m == nil {
		return
	}
	m.pendingRemoteOrders.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Instrument records count and latency per matched route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "undefined"
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.httpRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	})
}
