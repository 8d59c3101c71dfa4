package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "proxy"

var latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

type Prometheus struct {
	resolve     *prometheus.HistogramVec
	gateway     *prometheus.HistogramVec
	upload      *prometheus.HistogramVec
	http        *prometheus.HistogramVec
	kafka       *prometheus.HistogramVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

func NewPrometheus(registry prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		resolve: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "resolve_duration_ms",
			Help: "CID resolution latency by source", Subsystem: metricsSubsystem, Buckets: latencyBuckets},
			[]string{"source"}),
		gateway: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "gateway_fetch_duration_ms",
			Help: "Gateway fetch latency by gateway and outcome", Subsystem: metricsSubsystem, Buckets: latencyBuckets},
			[]string{"gateway", "ok"}),
		upload: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "upload_duration_ms",
			Help: "Upload and pin latency by outcome", Subsystem: metricsSubsystem, Buckets: latencyBuckets},
			[]string{"ok"}),
		http: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "http_request_duration_ms",
			Help: "HTTP request latency", Subsystem: metricsSubsystem, Buckets: latencyBuckets},
			[]string{"method", "route", "status"}),
		kafka: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "kafka_process_duration_ms",
			Help: "Listing event processing latency", Subsystem: metricsSubsystem, Buckets: latencyBuckets},
			[]string{"ok"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_hits_total",
			Help: "Document cache hits", Subsystem: metricsSubsystem}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_misses_total",
			Help: "Document cache misses", Subsystem: metricsSubsystem}),
	}

	registry.MustRegister(m.resolve, m.gateway, m.upload, m.http, m.kafka, m.cacheHits, m.cacheMisses)
	return m
}

func (m *Prometheus) ObserveResolve(source string, durMs float64) {
	m.resolve.WithLabelValues(source).Observe(durMs)
}

func (m *Prometheus) ObserveGateway(gateway string, ok bool, durMs float64) {
	m.gateway.WithLabelValues(gateway, strconv.FormatBool(ok)).Observe(durMs)
}

func (m *Prometheus) ObserveUpload(ok bool, durMs float64) {
	m.upload.WithLabelValues(strconv.FormatBool(ok)).Observe(durMs)
}

func (m *Prometheus) ObserveHTTP(method, route string, status int, durMs float64) {
	m.http.WithLabelValues(method, route, strconv.Itoa(status)).Observe(durMs)
}

func (m *Prometheus) ObserveKafka(processMs float64, ok bool) {
	m.kafka.WithLabelValues(strconv.FormatBool(ok)).Observe(processMs)
}

func (m *Prometheus) IncCacheHit()  { m.cacheHits.Inc() }
func (m *Prometheus) IncCacheMiss() { m.cacheMisses.Inc() }
