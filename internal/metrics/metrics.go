package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionGauge is the current number of relayed FTP sessions.
	SessionGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ftproxy_sessions",
		Help: "Current number of relayed FTP sessions",
	}, []string{"host"})

	// SessionCounter is the total number of accepted FTP sessions.
	SessionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ftproxy_sessions_total",
		Help: "Total number of accepted FTP sessions",
	}, []string{"host"})

	// StepFailures counts sessions torn down early, by the failing step.
	StepFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ftproxy_step_failures_total",
		Help: "Sessions aborted, by dialogue step",
	}, []string{"step"})

	DataBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ftproxy_data_bytes_total",
		Help: "Bytes relayed from passive to active data connections",
	})

	DataTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ftproxy_data_idle_timeouts_total",
		Help: "Data transfers ended by the idle timeout",
	})

	SessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ftproxy_session_duration_seconds",
		Help:    "Session lifetime in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
)

func init() {
	prometheus.MustRegister(SessionGauge, SessionCounter, StepFailures, DataBytes, DataTimeouts, SessionDuration)
}

func StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}
