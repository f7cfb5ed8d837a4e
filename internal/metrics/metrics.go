// Package metrics exposes oddbot's Prometheus collectors. A single Metrics
// value implements the observation hooks of the storage layer, the event
// log, the broadcaster and the gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oddbot"

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	reg *prometheus.Registry

	storeWrites      prometheus.Counter
	storeWriteBytes  prometheus.Counter
	storeReads       prometheus.Counter
	storeCommitTime  prometheus.Histogram
	storeCommitOps   prometheus.Counter
	published        *prometheus.CounterVec
	publishedBytes   *prometheus.CounterVec
	delivered        *prometheus.CounterVec
	redelivered      *prometheus.CounterVec
	acked            *prometheus.CounterVec
	terminated       *prometheus.CounterVec
	trimmed          *prometheus.CounterVec
	broadcastSent    prometheus.Counter
	broadcastDropped prometheus.Counter
	receivers        prometheus.Gauge
	sessions         prometheus.Gauge
	sessionsTotal    prometheus.Counter
	replayed         prometheus.Counter
	framesSent       prometheus.Counter
	forwarded        prometheus.Counter
	unheard          prometheus.Counter
	decodeFailures   *prometheus.CounterVec
	fetchErrors      prometheus.Counter
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	streamLabels := []string{"stream"}
	consumerLabels := []string{"stream", "consumer"}

	return &Metrics{
		reg: reg,
		storeWrites: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "writes_total",
			Help: "Single-key writes committed to Pebble.",
		}),
		storeWriteBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "write_bytes_total",
			Help: "Bytes written to Pebble.",
		}),
		storeReads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "reads_total",
			Help: "Point reads served by Pebble.",
		}),
		storeCommitTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "batch_commit_seconds",
			Help:    "Latency of batch commits.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		storeCommitOps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "batch_ops_total",
			Help: "Operations committed in batches.",
		}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventlog", Name: "published_total",
			Help: "Records appended to a stream.",
		}, streamLabels),
		publishedBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventlog", Name: "published_bytes_total",
			Help: "Payload bytes appended to a stream.",
		}, streamLabels),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventlog", Name: "delivered_total",
			Help: "First deliveries handed to consumers.",
		}, consumerLabels),
		redelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventlog", Name: "redelivered_total",
			Help: "Redeliveries after the ack wait expired.",
		}, consumerLabels),
		acked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventlog", Name: "acked_total",
			Help: "Deliveries acknowledged.",
		}, consumerLabels),
		terminated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventlog", Name: "terminated_total",
			Help: "Records dropped after reaching max deliver.",
		}, consumerLabels),
		trimmed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventlog", Name: "trimmed_total",
			Help: "Records removed by age retention.",
		}, streamLabels),
		broadcastSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "sent_total",
			Help: "Events offered to the broadcaster.",
		}),
		broadcastDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "dropped_total",
			Help: "Events lost by receivers that lagged behind.",
		}),
		receivers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "receivers",
			Help: "Live broadcast receivers.",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "sessions",
			Help: "Open WebSocket sessions.",
		}),
		sessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "sessions_total",
			Help: "WebSocket sessions accepted.",
		}),
		replayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "replayed_total",
			Help: "Historical squeaks replayed to sessions.",
		}),
		framesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "frames_sent_total",
			Help: "Text frames written to sessions.",
		}),
		forwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "forwarder", Name: "forwarded_total",
			Help: "Squeaks moved from the log to the broadcaster.",
		}),
		unheard: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "forwarder", Name: "unheard_total",
			Help: "Squeaks forwarded while no session was listening.",
		}),
		decodeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "decode_failures_total",
			Help: "Records that could not be decoded as squeaks.",
		}, []string{"path"}),
		fetchErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "forwarder", Name: "fetch_errors_total",
			Help: "Failed fetches from the durable consumer.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// storage

func (m *Metrics) ObserveWrite(_ time.Duration, bytes int) {
	m.storeWrites.Inc()
	m.storeWriteBytes.Add(float64(bytes))
}

func (m *Metrics) ObserveRead(time.Duration, int) { m.storeReads.Inc() }

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.storeCommitTime.Observe(elapsed.Seconds())
	m.storeCommitOps.Add(float64(numOps))
	m.storeWriteBytes.Add(float64(bytes))
}

// event log

func (m *Metrics) ObservePublish(stream string, bytes int) {
	m.published.WithLabelValues(stream).Inc()
	m.publishedBytes.WithLabelValues(stream).Add(float64(bytes))
}

func (m *Metrics) ObserveDelivered(stream, consumer string, fresh, redelivered int) {
	if fresh > 0 {
		m.delivered.WithLabelValues(stream, consumer).Add(float64(fresh))
	}
	if redelivered > 0 {
		m.redelivered.WithLabelValues(stream, consumer).Add(float64(redelivered))
	}
}

func (m *Metrics) ObserveAck(stream, consumer string) {
	m.acked.WithLabelValues(stream, consumer).Inc()
}

func (m *Metrics) ObserveTerminated(stream, consumer string, n int) {
	m.terminated.WithLabelValues(stream, consumer).Add(float64(n))
}

func (m *Metrics) ObserveTrim(stream string, n int) {
	m.trimmed.WithLabelValues(stream).Add(float64(n))
}

// broadcaster

func (m *Metrics) ObserveSend(int)         { m.broadcastSent.Inc() }
func (m *Metrics) ObserveDropped(n uint64) { m.broadcastDropped.Add(float64(n)) }
func (m *Metrics) SetReceivers(n int)      { m.receivers.Set(float64(n)) }

// gateway

func (m *Metrics) SessionOpened() {
	m.sessions.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) SessionClosed()        { m.sessions.Dec() }
func (m *Metrics) ObserveReplayed(n int) { m.replayed.Add(float64(n)) }
func (m *Metrics) ObserveFrameSent()     { m.framesSent.Inc() }

// forwarder

// ObserveForwarded counts one forwarded squeak. receivers is how many live
// sessions it reached.
func (m *Metrics) ObserveForwarded(receivers int) {
	m.forwarded.Inc()
	if receivers == 0 {
		m.unheard.Inc()
	}
}

func (m *Metrics) ObserveFetchError() { m.fetchErrors.Inc() }

// ObserveDecodeFailure counts a record that did not decode; path is
// "replay" or "forward".
func (m *Metrics) ObserveDecodeFailure(path string) {
	m.decodeFailures.WithLabelValues(path).Inc()
}
