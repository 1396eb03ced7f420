package crawler

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/sitecrawler/internal/model"
)

// Metrics holds the Prometheus collectors of one crawl. Each crawl owns its
// registry so that several crawls can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	pages            *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	offers           *prometheus.CounterVec
	queueLength      prometheus.Gauge
	inFlight         prometheus.Gauge
	analyzerFailures *prometheus.CounterVec
	findings         *prometheus.CounterVec
}

// NewMetrics creates and registers the crawl collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitecrawler",
				Name:      "pages_total",
				Help:      "Fetched URLs by status class and content type.",
			},
			[]string{"status_class", "content_type"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sitecrawler",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of fetches.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status_class"},
		),
		offers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitecrawler",
				Name:      "frontier_offers_total",
				Help:      "Frontier offers by result.",
			},
			[]string{"result"},
		),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sitecrawler",
			Name:      "frontier_queue_length",
			Help:      "URLs waiting in the frontier.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sitecrawler",
			Name:      "frontier_in_flight",
			Help:      "URLs currently being fetched.",
		}),
		analyzerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitecrawler",
				Name:      "analyzer_failures_total",
				Help:      "Analyzer runs that failed or panicked.",
			},
			[]string{"analyzer"},
		),
		findings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sitecrawler",
				Name:      "findings_total",
				Help:      "Summary lines emitted by analyzers, by severity.",
			},
			[]string{"analyzer", "severity"},
		),
	}

	m.registry.MustRegister(
		m.pages,
		m.fetchDuration,
		m.offers,
		m.queueLength,
		m.inFlight,
		m.analyzerFailures,
		m.findings,
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one completed fetch.
func (m *Metrics) ObserveFetch(v *model.VisitedURL) {
	if m == nil || v == nil {
		return
	}
	class := statusClass(v.StatusCode)
	m.pages.WithLabelValues(class, v.ContentType.String()).Inc()
	m.fetchDuration.WithLabelValues(class).Observe(v.RequestTime)
}

// ObserveOffer records the result of one frontier offer.
func (m *Metrics) ObserveOffer(result OfferResult) {
	if m == nil {
		return
	}
	m.offers.WithLabelValues(result.String()).Inc()
}

// ObserveFrontier updates the queue gauges.
func (m *Metrics) ObserveFrontier(stats FrontierStats) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(stats.Queued))
	m.inFlight.Set(float64(stats.InFlight))
}

// ObserveAnalyzerFailure counts a failed analyzer run.
func (m *Metrics) ObserveAnalyzerFailure(analyzer string) {
	if m == nil {
		return
	}
	m.analyzerFailures.WithLabelValues(analyzer).Inc()
}

// ObserveFindings adds one analyzer's per-page totals.
func (m *Metrics) ObserveFindings(analyzer string, totals model.SeverityTotals) {
	if m == nil {
		return
	}
	m.findings.WithLabelValues(analyzer, model.SeverityCritical.String()).Add(float64(totals.Critical))
	m.findings.WithLabelValues(analyzer, model.SeverityWarning.String()).Add(float64(totals.Warning))
	m.findings.WithLabelValues(analyzer, model.SeverityNotice.String()).Add(float64(totals.Notice))
	m.findings.WithLabelValues(analyzer, model.SeverityOK.String()).Add(float64(totals.OK))
}

// statusClass groups status codes as "2xx", "4xx" and so on, or "error"
// for transport failures.
func statusClass(code int) string {
	if code < 100 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}
