package metrics

/* adapted from https://github.com/zsais/go-gin-prometheus
edits:
- log through the service logger
- remove push gateway and basic auth variants
- register business metrics alongside the standard set
- serve /metrics from its own listener
*/

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var reqCnt = &Metric{
	ID:          "reqCnt",
	Name:        "req_total",
	Description: "How many HTTP requests processed, partitioned by status code and HTTP method.",
	Type:        "counter_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var reqDur = &Metric{
	ID:          "reqDur",
	Name:        "req_dur_ms",
	Description: "The HTTP request latencies in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var resSz = &Metric{
	ID:          "resSz",
	Name:        "resp_sz_bytes",
	Description: "The HTTP response sizes in bytes.",
	Type:        "summary_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var reqSz = &Metric{
	ID:          "reqSz",
	Name:        "req_sz_bytes",
	Description: "The HTTP request sizes in bytes.",
	Type:        "summary_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var standardMetrics = []*Metric{reqCnt, reqDur, resSz, reqSz}

const defaultMetricPath = "/metrics"

// Logger is satisfied by *zap.SugaredLogger.
type Logger interface {
	Errorw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
}

// RequestCounterURLLabelMappingFn controls the cardinality of the "url"
// label, typically by returning the route template instead of the raw path.
type RequestCounterURLLabelMappingFn func(c *gin.Context) string

// Prometheus holds the HTTP collectors and the metrics listener.
type Prometheus struct {
	reqCnt       *prometheus.CounterVec
	reqDur       *prometheus.HistogramVec
	reqSz, resSz *prometheus.SummaryVec

	listenAddress string
	metricsPath   string
	labelURL      RequestCounterURLLabelMappingFn
	logger        Logger
}

type NewPrometheusOptions struct {
	Subsystem string
	// MetricsList defaults to BusinessMetrics.
	MetricsList             []*Metric
	MetricsPath             string
	ReqCntURLLabelMappingFn RequestCounterURLLabelMappingFn
	Logger                  Logger
}

// NewPrometheus registers the standard HTTP metrics plus opts.MetricsList in
// the default registry.
func NewPrometheus(opts NewPrometheusOptions) *Prometheus {
	p := &Prometheus{
		metricsPath: opts.MetricsPath,
		labelURL:    opts.ReqCntURLLabelMappingFn,
		logger:      opts.Logger,
	}
	if p.metricsPath == "" {
		p.metricsPath = defaultMetricPath
	}
	if p.labelURL == nil {
		p.labelURL = func(c *gin.Context) string { return c.Request.URL.Path }
	}
	list := opts.MetricsList
	if list == nil {
		list = BusinessMetrics
	}
	p.registerMetrics(opts.Subsystem, append(append([]*Metric{}, list...), standardMetrics...))
	return p
}

// SetListenAddress exposes the metrics on a separate address. When unset the
// metrics path is mounted on the application engine.
func (p *Prometheus) SetListenAddress(address string) {
	p.listenAddress = address
}

func (p *Prometheus) registerMetrics(subsystem string, defs []*Metric) {
	for _, def := range defs {
		metric := NewMetric(def, subsystem)
		if metric == nil {
			continue
		}
		if err := prometheus.Register(metric); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				metric = are.ExistingCollector
			} else if p.logger != nil {
				p.logger.Errorw("metric_register_failed", "metric", def.Name, "error", err)
			}
		}
		switch def {
		case reqCnt:
			p.reqCnt, _ = metric.(*prometheus.CounterVec)
		case reqDur:
			p.reqDur, _ = metric.(*prometheus.HistogramVec)
		case resSz:
			p.resSz, _ = metric.(*prometheus.SummaryVec)
		case reqSz:
			p.reqSz, _ = metric.(*prometheus.SummaryVec)
		}
		def.MetricCollector = metric
	}
}

// Use adds the middleware to e and exposes the metrics path.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	if p.listenAddress == "" {
		e.GET(p.metricsPath, prometheusHandler())
		return
	}
	mux := http.NewServeMux()
	mux.Handle(p.metricsPath, promhttp.Handler())
	srv := &http.Server{Addr: p.listenAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && p.logger != nil {
			p.logger.Errorw("metrics_server_stopped", "addr", p.listenAddress, "error", err)
		}
	}()
}

// HandlerFunc records count, latency and sizes of every request.
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.metricsPath {
			c.Next()
			return
		}

		start := time.Now()
		reqSz := computeApproximateRequestSize(c.Request)

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := p.labelURL(c)
		ref := c.Request.Header.Get(RefererKey)
		labels := []string{status, c.Request.Method, url, ref}

		if p.reqDur != nil {
			p.reqDur.WithLabelValues(labels...).Observe(MillisecondsSince(start))
		}
		if p.reqCnt != nil {
			p.reqCnt.WithLabelValues(labels...).Inc()
		}
		if p.reqSz != nil {
			p.reqSz.WithLabelValues(labels...).Observe(float64(reqSz))
		}
		if p.resSz != nil {
			p.resSz.WithLabelValues(labels...).Observe(float64(c.Writer.Size()))
		}
	}
}

func prometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// computeApproximateRequestSize sums the request line, headers and declared
// body length.
func computeApproximateRequestSize(r *http.Request) int {
	s := 0
	if r.URL != nil {
		s = len(r.URL.Path)
	}

	s += len(r.Method)
	s += len(r.Proto)
	for name, values := range r.Header {
		s += len(name)
		for _, value := range values {
			s += len(value)
		}
	}
	s += len(r.Host)

	if r.ContentLength != -1 {
		s += int(r.ContentLength)
	}
	return s
}
