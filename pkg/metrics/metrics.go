package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses around 700ms (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Extended range: covers 60000ms+ (15s - 75s) ---
	20000,  // 20s
	30000,  // 30s
	45000,  // 45s
	60000,  // 60s
	75000,  // 75s
	90000,  // 90s
	120000, // 120s
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "gauge_vec":
		metric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "gauge":
		metric = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
				Buckets:   HistogramBuckets,
			},
			m.Args,
		)
	case "histogram":
		metric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
				Buckets:   HistogramBuckets,
			},
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "summary":
		metric = prometheus.NewSummary(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	}
	return metric
}

var MetricsBusinessProcess = &Metric{
	ID:          "bpDur",
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        "histogram_vec",
	Args:        []string{"type", "subtype"},
}

// MetricsWebhookOutcome counts gateway notifications by how they were resolved.
var MetricsWebhookOutcome = &Metric{
	ID:          "webhookOutcome",
	Name:        "webhook_outcome_total",
	Description: "gateway webhook deliveries partitioned by outcome",
	Type:        "counter_vec",
	Args:        []string{"outcome"},
}

// MetricsBalanceTransition counts payment status transitions that moved a DJ balance.
var MetricsBalanceTransition = &Metric{
	ID:          "balanceTransition",
	Name:        "balance_transition_total",
	Description: "payment status transitions that adjusted DJ balances",
	Type:        "counter_vec",
	Args:        []string{"from", "to", "direction"},
}

var BusinessMetrics = []*Metric{
	MetricsBusinessProcess,
	MetricsWebhookOutcome,
	MetricsBalanceTransition,
}

const (
	RefererKey = "X-Referer"
)

// ObserveBusinessProcess records the elapsed time since start. It is a no-op
// until the metric has been registered by NewPrometheus.
func ObserveBusinessProcess(typ, subtype string, start time.Time) {
	if h, ok := MetricsBusinessProcess.MetricCollector.(*prometheus.HistogramVec); ok {
		h.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
	}
}

// IncWebhookOutcome bumps the webhook outcome counter.
func IncWebhookOutcome(outcome string) {
	if c, ok := MetricsWebhookOutcome.MetricCollector.(*prometheus.CounterVec); ok {
		c.WithLabelValues(outcome).Inc()
	}
}

// IncBalanceTransition bumps the balance transition counter.
func IncBalanceTransition(from, to, direction string) {
	if c, ok := MetricsBalanceTransition.MetricCollector.(*prometheus.CounterVec); ok {
		c.WithLabelValues(from, to, direction).Inc()
	}
}

// MillisecondsSince returns the elapsed time in milliseconds.
func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
