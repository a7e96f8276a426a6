package run

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"voicecap/internal/asr"
	"voicecap/internal/cascade"
	"voicecap/internal/pipeline"
)

var pipelineStates = []pipeline.State{
	pipeline.StateIdle,
	pipeline.StateRecording,
	pipeline.StateProcessing,
	pipeline.StateReady,
	pipeline.StateError,
}

type metrics struct {
	reg *prometheus.Registry

	attempts   *prometheus.CounterVec
	recordings prometheus.Counter
	failures   *prometheus.CounterVec
	hooks      *prometheus.CounterVec
	processing prometheus.Histogram
	state      *prometheus.GaugeVec
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecap_recognition_attempts_total",
			Help: "Recognition attempts by backend and outcome.",
		}, []string{"backend", "result"}),
		recordings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicecap_recordings_total",
			Help: "Recordings that produced text.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecap_failures_total",
			Help: "Recordings that failed, by whether a retry is possible.",
		}, []string{"retryable"}),
		hooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecap_hooks_total",
			Help: "Hook dispatches by outcome.",
		}, []string{"result"}),
		processing: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecap_processing_seconds",
			Help:    "Time from dequeue to final text.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voicecap_state",
			Help: "1 for the current pipeline state.",
		}, []string{"state"}),
	}
	m.reg.MustRegister(m.attempts, m.recordings, m.failures, m.hooks, m.processing, m.state)
	m.setState(pipeline.StateIdle)
	return m
}

func (m *metrics) observeAttempt(a cascade.Attempt) {
	result := "ok"
	if a.Err != nil {
		result = "error"
		if kind, ok := asr.KindOf(a.Err); ok {
			result = kind.String()
		}
	}
	m.attempts.WithLabelValues(string(a.Backend), result).Inc()
}

func (m *metrics) setState(s pipeline.State) {
	for _, st := range pipelineStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(string(st)).Set(v)
	}
}

func (m *metrics) failed(retry bool) {
	label := "false"
	if retry {
		label = "true"
	}
	m.failures.WithLabelValues(label).Inc()
}

func (m *metrics) hook(result string) { m.hooks.WithLabelValues(result).Inc() }

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *metrics) serve(ctx context.Context, addr string, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warnf("metrics server: %v", err)
	}
}
