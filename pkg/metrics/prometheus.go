package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector using Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	connectionErrors  prometheus.Counter

	transfersStartedTotal   *prometheus.CounterVec
	transfersCompletedTotal *prometheus.CounterVec
	transfersFailedTotal    *prometheus.CounterVec
	transferBytesTotal      *prometheus.CounterVec
	transferDurationSeconds *prometheus.HistogramVec

	blocksSentTotal     prometheus.Counter
	blocksReceivedTotal prometheus.Counter
}

// NewPrometheusCollector creates a PrometheusCollector with all metrics
// registered against reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkd_connections_total",
			Help: "Total number of negotiated peer connections.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sparkd_connections_active",
			Help: "Number of currently connected peers.",
		}),
		connectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkd_connection_errors_total",
			Help: "Total number of connection/negotiation errors.",
		}),

		transfersStartedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparkd_transfers_started_total",
			Help: "Total number of transfers started.",
		}, []string{"direction"}),
		transfersCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparkd_transfers_completed_total",
			Help: "Total number of transfers completed successfully.",
		}, []string{"direction"}),
		transfersFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparkd_transfers_failed_total",
			Help: "Total number of transfers that ended in failure.",
		}, []string{"direction"}),
		transferBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparkd_transfer_bytes_total",
			Help: "Total bytes moved by completed transfers.",
		}, []string{"direction"}),
		transferDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sparkd_transfer_duration_seconds",
			Help:    "Duration of completed transfers, in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"direction"}),

		blocksSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkd_blocks_sent_total",
			Help: "Total number of blocks sent.",
		}),
		blocksReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkd_blocks_received_total",
			Help: "Total number of blocks received.",
		}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.connectionErrors,
		c.transfersStartedTotal,
		c.transfersCompletedTotal,
		c.transfersFailedTotal,
		c.transferBytesTotal,
		c.transferDurationSeconds,
		c.blocksSentTotal,
		c.blocksReceivedTotal,
	)

	return c
}

func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

func (c *PrometheusCollector) ConnectionError() {
	c.connectionErrors.Inc()
}

func (c *PrometheusCollector) TransferStarted(direction string) {
	c.transfersStartedTotal.WithLabelValues(direction).Inc()
}

func (c *PrometheusCollector) TransferCompleted(direction string, bytes int64, seconds float64) {
	c.transfersCompletedTotal.WithLabelValues(direction).Inc()
	c.transferBytesTotal.WithLabelValues(direction).Add(float64(bytes))
	c.transferDurationSeconds.WithLabelValues(direction).Observe(seconds)
}

func (c *PrometheusCollector) TransferFailed(direction string) {
	c.transfersFailedTotal.WithLabelValues(direction).Inc()
}

func (c *PrometheusCollector) BlockSent() {
	c.blocksSentTotal.Inc()
}

func (c *PrometheusCollector) BlockReceived() {
	c.blocksReceivedTotal.Inc()
}
