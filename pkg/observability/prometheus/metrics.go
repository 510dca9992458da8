package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fluxorio/counterlog/pkg/counter"
)

// NewRegistry returns a fresh registry with the Go and process collectors,
// and a registerer that stamps every metric with service=<service>.
func NewRegistry(service string) (*prometheus.Registry, prometheus.Registerer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, reg)
}

// Metrics holds all Prometheus metrics. It implements counter.Observer.
type Metrics struct {
	// Engine metrics
	OperationsTotal   *prometheus.CounterVec
	Value             *prometheus.GaugeVec
	Pending           *prometheus.GaugeVec
	LogAppendsTotal   *prometheus.CounterVec
	LogAppendDuration *prometheus.HistogramVec
	LogAppendBatch    *prometheus.HistogramVec
	FlushesTotal      *prometheus.CounterVec
	FlushDuration     *prometheus.HistogramVec
	ReplayedRecords   *prometheus.CounterVec
	SkippedRecords    *prometheus.CounterVec
	TornTails         *prometheus.CounterVec
	RecoverDuration   *prometheus.HistogramVec

	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the metrics with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	f := promauto.With(registerer)

	return &Metrics{
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterlog_operations_total",
				Help: "Total number of applied increments and decrements",
			},
			[]string{"counter", "mode"},
		),
		Value: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "counterlog_value",
				Help: "Current in-memory counter value",
			},
			[]string{"counter"},
		),
		Pending: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "counterlog_pending_operations",
				Help: "Operations applied since the last successful flush",
			},
			[]string{"counter"},
		),
		LogAppendsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterlog_log_appends_total",
				Help: "Total number of operation log appends",
			},
			[]string{"counter", "mode", "result"},
		),
		LogAppendDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "counterlog_log_append_duration_seconds",
				Help:    "Operation log append latency in seconds, fsync included",
				Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"counter", "mode"},
		),
		LogAppendBatch: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "counterlog_log_append_records",
				Help:    "Records written per operation log append",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 to 16384
			},
			[]string{"counter", "mode"},
		),
		FlushesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterlog_flushes_total",
				Help: "Total number of flush attempts",
			},
			[]string{"counter", "reason", "result"},
		),
		FlushDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "counterlog_flush_duration_seconds",
				Help:    "Flush duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"counter", "reason"},
		),
		ReplayedRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterlog_replayed_records_total",
				Help: "Operation log records applied during recovery",
			},
			[]string{"counter"},
		),
		SkippedRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterlog_skipped_records_total",
				Help: "Unparsable operation log records skipped during recovery",
			},
			[]string{"counter"},
		),
		TornTails: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterlog_torn_tails_total",
				Help: "Recoveries that found an unterminated final record",
			},
			[]string{"counter"},
		),
		RecoverDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "counterlog_recover_duration_seconds",
				Help:    "Init duration in seconds (load, replay, checkpoint, truncate)",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"counter"},
		),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counterlog_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "counterlog_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (m *Metrics) OnRecover(i counter.RecoverInfo) {
	m.Value.WithLabelValues(i.Counter).Set(float64(i.Value))
	m.Pending.WithLabelValues(i.Counter).Set(0)
	m.ReplayedRecords.WithLabelValues(i.Counter).Add(float64(i.Replayed))
	m.SkippedRecords.WithLabelValues(i.Counter).Add(float64(i.Skipped))
	if i.Torn {
		m.TornTails.WithLabelValues(i.Counter).Inc()
	}
	m.RecoverDuration.WithLabelValues(i.Counter).Observe(i.Duration.Seconds())
}

func (m *Metrics) OnOperation(i counter.OperationInfo) {
	m.OperationsTotal.WithLabelValues(i.Counter, string(i.Mode)).Inc()
	m.Value.WithLabelValues(i.Counter).Set(float64(i.Value))
	m.Pending.WithLabelValues(i.Counter).Set(float64(i.Pending))
}

func (m *Metrics) OnLogAppend(i counter.AppendInfo) {
	mode := string(i.Mode)
	m.LogAppendsTotal.WithLabelValues(i.Counter, mode, result(i.Err)).Inc()
	m.LogAppendDuration.WithLabelValues(i.Counter, mode).Observe(i.Duration.Seconds())
	m.LogAppendBatch.WithLabelValues(i.Counter, mode).Observe(float64(i.Records))
}

func (m *Metrics) OnFlush(i counter.FlushInfo) {
	m.FlushesTotal.WithLabelValues(i.Counter, i.Reason, result(i.Err)).Inc()
	m.FlushDuration.WithLabelValues(i.Counter, i.Reason).Observe(i.Duration.Seconds())
	if i.Err == nil {
		// Operations that raced the flush are still pending; the next
		// OnOperation sets the exact figure.
		m.Pending.WithLabelValues(i.Counter).Sub(float64(i.Ops))
		m.Value.WithLabelValues(i.Counter).Set(float64(i.Value))
	}
}

// Forget drops every series labelled with name, for counters that were
// removed from the registry.
func (m *Metrics) Forget(name string) {
	labels := prometheus.Labels{"counter": name}
	for _, vec := range []interface{ DeletePartialMatch(prometheus.Labels) int }{
		m.OperationsTotal, m.Value, m.Pending, m.LogAppendsTotal, m.LogAppendDuration,
		m.LogAppendBatch, m.FlushesTotal, m.FlushDuration, m.ReplayedRecords,
		m.SkippedRecords, m.TornTails, m.RecoverDuration,
	} {
		vec.DeletePartialMatch(labels)
	}
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var _ counter.Observer = (*Metrics)(nil)
