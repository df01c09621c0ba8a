package main

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/Bren2010/signup-sequencer/sequencer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is set at build time.
var Version = "dev"

var GoVersion = runtime.Version()

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "A metric with a constant '1' value labeled by version, and goversion.",
		},
		[]string{"version", "goversion"},
	)
	requestCtr = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "api_requests",
			Help: "Incremented for each API request received.",
		},
	)
	responseCtr = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_response_status",
			Help: "Incremented for each API response, labeled by status code.",
		},
		[]string{"status_code"},
	)
	latencyHist = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Histogram of how long API requests take to complete.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)
)

// registerMetrics registers every collector the server exports with reg.
func registerMetrics(reg prometheus.Registerer) {
	buildInfo.WithLabelValues(Version, GoVersion).Set(1)
	reg.MustRegister(buildInfo)
	reg.MustRegister(requestCtr)
	reg.MustRegister(responseCtr)
	reg.MustRegister(latencyHist)
	reg.MustRegister(sequencer.Collectors()...)
}

// metricsServer returns the metrics and debugging server. The caller is
// responsible for starting it.
func metricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(rw http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/" {
			fmt.Fprintln(rw, "Hi, I'm a sequencer metrics and debugging server!")
		} else {
			rw.WriteHeader(404)
			fmt.Fprintln(rw, "404 not found")
		}
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/debug/version", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, "Version: %s, GoVersion: %s", Version, GoVersion)
	})

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}
