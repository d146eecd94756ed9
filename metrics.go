package wsflush

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/behrlich/wsflush/frame"
)

// PromObserver is an Observer backed by github.com/prometheus/client_golang,
// reporting write/submit/queue-depth/failure metrics as counters,
// histograms, and a gauge.
type PromObserver struct {
	writeBytes     prometheus.Counter
	writeLatencyNs prometheus.Histogram
	writesBatched  prometheus.Counter
	writesGathered prometheus.Counter
	gatherLen      prometheus.Histogram

	submits  *prometheus.CounterVec
	failures *prometheus.CounterVec

	queueDepth prometheus.Gauge
}

// NewPromObserver constructs a PromObserver and registers its metrics
// with reg. Pass prometheus.DefaultRegisterer for the global registry.
func NewPromObserver(reg prometheus.Registerer, namespace string) *PromObserver {
	o := &PromObserver{
		writeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_bytes_total",
			Help:      "Total bytes handed to the transport across all writes.",
		}),
		writeLatencyNs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_latency_ns",
			Help:      "Transport write completion latency in nanoseconds.",
			Buckets:   prometheus.ExponentialBuckets(1000, 4, 12),
		}),
		writesBatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_batched_total",
			Help:      "Writes that included aggregated (copied) bytes.",
		}),
		writesGathered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_gathered_total",
			Help:      "Writes issued as a pure gather write with no aggregation.",
		}),
		gatherLen: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_gather_len",
			Help:      "Number of buffers included in each transport write.",
			Buckets:   prometheus.LinearBuckets(1, 1, 16),
		}),
		submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submits_total",
			Help:      "Accepted submissions by opcode.",
		}, []string{"opcode"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Terminal failures by kind.",
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Submit queue length immediately after the last drain.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			o.writeBytes, o.writeLatencyNs, o.writesBatched, o.writesGathered,
			o.gatherLen, o.submits, o.failures, o.queueDepth,
		)
	}
	return o
}

func (o *PromObserver) ObserveWrite(bytes int, latencyNs int64, batched bool, gatherLen int) {
	o.writeBytes.Add(float64(bytes))
	o.writeLatencyNs.Observe(float64(latencyNs))
	o.gatherLen.Observe(float64(gatherLen))
	if batched {
		o.writesBatched.Inc()
	} else {
		o.writesGathered.Inc()
	}
}

func (o *PromObserver) ObserveSubmit(opcode frame.Opcode) {
	o.submits.WithLabelValues(opcode.String()).Inc()
}

func (o *PromObserver) ObserveQueueDepth(n int) {
	o.queueDepth.Set(float64(n))
}

func (o *PromObserver) ObserveFailure(kind string) {
	o.failures.WithLabelValues(kind).Inc()
}
