package zsock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors a Context reports to. A nil
// *Metrics records nothing.
type Metrics struct {
	// Traffic, labelled by socket role
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	BytesSent      *prometheus.CounterVec
	BytesReceived  *prometheus.CounterVec

	// Failures, labelled by error kind
	Errors *prometheus.CounterVec

	OpenSockets prometheus.Gauge
	PollWait    prometheus.Histogram
}

// NewMetrics creates the collectors under namespace and registers them with
// reg. A nil reg leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of frames sent",
		}, []string{"role"}),
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of frames received",
		}, []string{"role"}),
		BytesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent",
		}, []string{"role"}),
		BytesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received",
		}, []string{"role"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of failed socket operations",
		}, []string{"kind"}),
		OpenSockets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sockets",
			Help:      "Number of sockets currently open",
		}),
		PollWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_wait_seconds",
			Help:      "Time spent in Poller.Wait",
			Buckets:   []float64{.0001, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
}

func (m *Metrics) sent(role Role, n int) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(role.String()).Inc()
	m.BytesSent.WithLabelValues(role.String()).Add(float64(n))
}

func (m *Metrics) received(role Role, n int) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(role.String()).Inc()
	m.BytesReceived.WithLabelValues(role.String()).Add(float64(n))
}

// failed counts err unless it is a flow-control signal.
func (m *Metrics) failed(err error) {
	if m == nil || err == nil {
		return
	}
	kind := KindOf(err)
	if kind == KindWouldBlock {
		return
	}
	m.Errors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) opened() {
	if m != nil {
		m.OpenSockets.Inc()
	}
}

func (m *Metrics) closed() {
	if m != nil {
		m.OpenSockets.Dec()
	}
}

func (m *Metrics) polled(d time.Duration) {
	if m != nil {
		m.PollWait.Observe(d.Seconds())
	}
}
