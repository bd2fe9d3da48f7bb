package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Pipeline metrics
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usagereporter_pipeline_runs_total",
			Help: "Total report pipeline runs by trigger and result",
		},
		[]string{"trigger", "status"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "usagereporter_delivery_duration_seconds",
			Help:    "Webhook delivery duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"result"},
	)

	// Outcome metrics
	LastOutcomeStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "usagereporter_last_outcome",
			Help: "Most recent send outcome, 1 for the current status and 0 otherwise",
		},
		[]string{"status"},
	)

	LastSuccessTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "usagereporter_last_success_timestamp_seconds",
			Help: "Unix time of the most recent successful delivery",
		},
	)

	// Scheduler metrics
	NextFireTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "usagereporter_job_next_fire_timestamp_seconds",
			Help: "Unix time of the next fire of each registered job",
		},
		[]string{"job"},
	)

	JobFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usagereporter_job_fires_total",
			Help: "Total job fires by job and result",
		},
		[]string{"job", "result"},
	)

	// Usage metrics
	ActivityHeartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usagereporter_activity_heartbeats_total",
			Help: "Total application activity heartbeats received",
		},
	)

	UsageSessionsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usagereporter_usage_sessions_finalized_total",
			Help: "Total usage sessions closed, by whether they were recorded or discarded",
		},
		[]string{"result"},
	)

	// Name cache metrics
	NameCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usagereporter_name_cache_hits_total",
			Help: "Application name cache hits",
		},
	)

	NameCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usagereporter_name_cache_misses_total",
			Help: "Application name cache misses",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PipelineRunsTotal,
		DeliveryDuration,
		LastOutcomeStatus,
		LastSuccessTimestamp,
		NextFireTimestamp,
		JobFiresTotal,
		ActivityHeartbeats,
		UsageSessionsFinalized,
		NameCacheHits,
		NameCacheMisses,
	)
}

// SetLastOutcome flags status as the current outcome and clears the others.
func SetLastOutcome(status string) {
	for _, s := range []string{"NOT_SENT", "SUCCESS", "FAILED"} {
		value := 0.0
		if s == status {
			value = 1
		}
		LastOutcomeStatus.WithLabelValues(s).Set(value)
	}
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
