package main

import (
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patrickjmccarty/meetup-data-mining/adapters"
)

// jobMetrics carries the run's Prometheus collectors on a private registry.
type jobMetrics struct {
	reg *prometheus.Registry

	requests       *prometheus.CounterVec
	pages          prometheus.Counter
	eventsWritten  prometheus.Counter
	retries        prometheus.Counter
	rateLimitWaits prometheus.Counter
	rateRemaining  prometheus.Gauge
}

func newJobMetrics() *jobMetrics {
	m := &jobMetrics{reg: prometheus.NewRegistry()}

	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openevents",
		Name:      "http_requests_total",
		Help:      "API requests by endpoint and HTTP status code.",
	}, []string{"endpoint", "code"})
	m.pages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "openevents",
		Name:      "pages_total",
		Help:      "Event pages successfully downloaded.",
	})
	m.eventsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "openevents",
		Name:      "events_written_total",
		Help:      "Rows appended to the output CSV.",
	})
	m.retries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "openevents",
		Name:      "retries_total",
		Help:      "Page requests retried after a transient failure.",
	})
	m.rateLimitWaits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "openevents",
		Name:      "ratelimit_waits_total",
		Help:      "Times the run slept out a rate-limit window.",
	})
	m.rateRemaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "openevents",
		Name:      "ratelimit_remaining",
		Help:      "Remaining requests in the current rate-limit window, per the last response.",
	})

	m.reg.MustRegister(m.requests, m.pages, m.eventsWritten, m.retries, m.rateLimitWaits, m.rateRemaining)
	return m
}

func (m *jobMetrics) observeRequest(endpoint string, meta adapters.FetchMeta) {
	m.requests.WithLabelValues(endpoint, strconv.Itoa(meta.StatusCode)).Inc()
	if meta.RateLimit.Remaining >= 0 {
		m.rateRemaining.Set(float64(meta.RateLimit.Remaining))
	}
}

// serve exposes /metrics plus the pprof handlers on addr. Best effort; the
// listener dying must not take the download with it.
func (m *jobMetrics) serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
