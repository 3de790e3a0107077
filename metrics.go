package cachebroker

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	hitLabelL1     = "l1"
	hitLabelL2     = "l2"
	hitLabelLoader = "loader"
)

const (
	errLabelL2Read  = "l2_read"
	errLabelL2Write = "l2_write"
	errLabelPublish = "publish"
	errLabelDecode  = "decode"
)

var latencyBucketsMS = []float64{1, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// metricSet is the manager's prometheus surface: the teacher's three-collector
// MetricSet shape (hits by tier, read latency, and errors by kind) plus a
// fourth collector counting L1 evictions by reason.
type metricSet struct {
	Hit       *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
	Error     *prometheus.CounterVec
	Eviction  *prometheus.CounterVec
	registered bool
}

func newMetricSet(appName string) *metricSet {
	return &metricSet{
		Hit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_cachebroker_hit_total", appName),
			Help: "cache hits by tier: l1, l2, loader",
		}, []string{"hit"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_cachebroker_latency_ms", appName),
			Help:    "cache read latency in ms by tier",
			Buckets: latencyBucketsMS,
		}, []string{"hit"}),
		Error: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_cachebroker_error_total", appName),
			Help: "internal errors by kind",
		}, []string{"when"}),
		Eviction: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_cachebroker_l1_eviction_total", appName),
			Help: "L1 evictions by reason",
		}, []string{"reason"}),
	}
}

func (m *metricSet) register() {
	for _, c := range []prometheus.Collector{m.Hit, m.Latency, m.Error, m.Eviction} {
		if err := prometheus.Register(c); err != nil {
			log.Err(err).Msg("cachebroker: failed to register prometheus collector")
		}
	}
	m.registered = true
}

func (m *metricSet) unregister() {
	if !m.registered {
		return
	}
	prometheus.Unregister(m.Hit)
	prometheus.Unregister(m.Latency)
	prometheus.Unregister(m.Error)
	prometheus.Unregister(m.Eviction)
}
