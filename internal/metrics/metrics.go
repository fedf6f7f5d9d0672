// Package metrics exposes pipeline counters over a Prometheus scrape
// endpoint.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docket/internal/logging"
	"docket/internal/registry"
)

// PipelineMetrics tracks per-stage pipeline activity.
type PipelineMetrics struct {
	registry *prometheus.Registry

	stageTotal     *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageInFlight  prometheus.Gauge
	runsDecided    *prometheus.CounterVec
	intakeScans    prometheus.Counter
	intakeNewFiles prometheus.Counter
	queueDepth     *prometheus.GaugeVec
}

// NewPipelineMetrics builds the metric set on a private registry.
func NewPipelineMetrics() *PipelineMetrics {
	reg := prometheus.NewRegistry()

	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docket",
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Total stage executions by stage and result.",
		},
		[]string{"stage", "result"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docket",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)
	stageInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docket",
			Subsystem: "pipeline",
			Name:      "stages_in_flight",
			Help:      "Number of stages currently executing.",
		},
	)
	runsDecided := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docket",
			Subsystem: "pipeline",
			Name:      "runs_decided_total",
			Help:      "Total runs decided by terminal outcome.",
		},
		[]string{"outcome"},
	)
	intakeScans := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docket",
			Subsystem: "intake",
			Name:      "scans_total",
			Help:      "Total intake scans completed.",
		},
	)
	intakeNewFiles := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docket",
			Subsystem: "intake",
			Name:      "registered_total",
			Help:      "Total documents registered by intake scans.",
		},
	)
	queueDepth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docket",
			Subsystem: "registry",
			Name:      "documents",
			Help:      "Registered documents by status.",
		},
		[]string{"status"},
	)

	reg.MustRegister(stageTotal, stageDuration, stageInFlight, runsDecided, intakeScans, intakeNewFiles, queueDepth)

	return &PipelineMetrics{
		registry:       reg,
		stageTotal:     stageTotal,
		stageDuration:  stageDuration,
		stageInFlight:  stageInFlight,
		runsDecided:    runsDecided,
		intakeScans:    intakeScans,
		intakeNewFiles: intakeNewFiles,
		queueDepth:     queueDepth,
	}
}

// Handler returns the scrape handler for this metric set.
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartStage marks a stage execution as in flight.
func (m *PipelineMetrics) StartStage() {
	m.stageInFlight.Inc()
}

// FinishStage records the result and duration of one stage execution.
func (m *PipelineMetrics) FinishStage(stage string, duration time.Duration, err error) {
	m.stageInFlight.Dec()
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.stageTotal.WithLabelValues(stage, result).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordOutcome counts one decided run.
func (m *PipelineMetrics) RecordOutcome(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.runsDecided.WithLabelValues(outcome).Inc()
}

// RecordIntakeScan counts one intake pass and its newly registered files.
func (m *PipelineMetrics) RecordIntakeScan(registered int) {
	m.intakeScans.Inc()
	if registered > 0 {
		m.intakeNewFiles.Add(float64(registered))
	}
}

// UpdateQueueDepth reflects registry counts onto the depth gauge.
func (m *PipelineMetrics) UpdateQueueDepth(stats map[registry.Status]int) {
	for _, status := range registry.AllStatuses() {
		m.queueDepth.WithLabelValues(string(status)).Set(float64(stats[status]))
	}
}

// Server serves the scrape endpoint on the configured bind address.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds a metrics server exposing /metrics and a trivial
// /healthz.
func NewServer(bind string, m *PipelineMetrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	serverLogger := logger
	if serverLogger != nil {
		serverLogger = logging.NewComponentLogger(serverLogger, "metrics")
	}
	return &Server{
		srv: &http.Server{
			Addr:              bind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: serverLogger,
	}
}

// Start begins serving in the background. A bind failure is returned
// synchronously; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.logger != nil {
				s.logger.Error("metrics server stopped", logging.Error(err))
			}
		}
	}()
	if s.logger != nil {
		s.logger.Info("metrics server listening", logging.String("addr", ln.Addr().String()))
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
