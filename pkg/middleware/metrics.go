package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the request metrics of all deployed modules.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight *prometheus.GaugeVec
	ModulesDeployed  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bundle_host",
				Name:      "requests_total",
				Help:      "Total number of requests served per module",
			},
			[]string{"module", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bundle_host",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds per module",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"module", "method"},
		),
		RequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "bundle_host",
				Name:      "requests_in_flight",
				Help:      "Requests currently being served per module",
			},
			[]string{"module"},
		),
		ModulesDeployed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bundle_host",
				Name:      "modules_deployed",
				Help:      "Number of modules deployed in this process",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.RequestsInFlight, m.ModulesDeployed)
	}
	return m
}

// Handler returns a gin middleware that records requests for module.
func (m *Metrics) Handler(module string) gin.HandlerFunc {
	inFlight := m.RequestsInFlight.WithLabelValues(module)
	return func(c *gin.Context) {
		start := time.Now()
		inFlight.Inc()
		defer inFlight.Dec()

		c.Next()

		m.RequestsTotal.WithLabelValues(module, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(module, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
