package metrics

import (
	"net/http"
	"strconv"

	"github.com/nao1215/excavate/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the scan counters.
type Metrics struct {
	transactionsTotal *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
	ruleHitsTotal     *prometheus.CounterVec
	spiderMaxTotal    prometheus.Counter
	bodyBytes         prometheus.Histogram
}

// NewMetrics creates the counters and registers them with reg.
// A nil reg registers with the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "excavate_transactions_total", Help: "Total HTTP transactions processed"},
			[]string{"code", "content_type"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "excavate_events_total", Help: "Total events emitted"},
			[]string{"type", "module"},
		),
		ruleHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "excavate_rule_hits_total", Help: "Total signature rule matches"},
			[]string{"rule", "buffer"},
		),
		spiderMaxTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "excavate_spider_max_total", Help: "Total URLs tagged spider-max"},
		),
		bodyBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "excavate_response_body_bytes",
				Help:    "Size of processed response bodies",
				Buckets: prometheus.ExponentialBuckets(256, 4, 9),
			},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.transactionsTotal,
		m.eventsTotal,
		m.ruleHitsTotal,
		m.spiderMaxTotal,
		m.bodyBytes,
	)

	return m
}

// Handler returns the HTTP handler serving reg, or the default registry when reg is nil.
func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveTransaction counts a processed transaction.
func (m *Metrics) ObserveTransaction(tx *model.Transaction) {
	if m == nil || tx == nil {
		return
	}
	contentType := tx.ContentType
	if contentType == "" {
		contentType = "none"
	}
	m.transactionsTotal.WithLabelValues(strconv.Itoa(tx.StatusCode), contentType).Inc()
	m.bodyBytes.Observe(float64(len(tx.Body)))
}

// ObserveEvent counts an emitted event.
func (m *Metrics) ObserveEvent(ev *model.Event) {
	if m == nil || ev == nil {
		return
	}
	module := ev.Module
	if module == "" {
		module = "none"
	}
	m.eventsTotal.WithLabelValues(ev.Type.String(), module).Inc()
	if ev.HasTag(model.TagSpiderMax) {
		m.spiderMaxTotal.Inc()
	}
}

// ObserveRuleHit counts a signature rule match in the named buffer
// (body, header or exif).
func (m *Metrics) ObserveRuleHit(rule, buffer string) {
	if m == nil {
		return
	}
	m.ruleHitsTotal.WithLabelValues(rule, buffer).Inc()
}
