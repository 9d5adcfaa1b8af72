// Package metrics exposes Prometheus counters/gauges for the pipeline plus
// a /healthz liveness endpoint, mirroring the teacher's metrics server
// shape with this domain's own instrument names.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus instrument for the signal engine pipeline.
type Metrics struct {
	IngestionMessagesTotal  prometheus.Counter
	IngestionDroppedTotal   *prometheus.CounterVec // labels: reason
	WSReconnectsTotal       prometheus.Counter
	ValidationFailuresTotal *prometheus.CounterVec // labels: reason

	FeaturesComputedTotal prometheus.Counter
	FeatureComputeDur     prometheus.Histogram

	EventsEmittedTotal *prometheus.CounterVec // labels: type
	EventsDroppedTotal prometheus.Counter
	EventQueueDepth    prometheus.Gauge

	SignalsEmittedTotal  *prometheus.CounterVec // labels: direction
	SignalsFilteredTotal *prometheus.CounterVec // labels: gate

	TrackerOutcomesTotal *prometheus.CounterVec // labels: outcome

	SinkBatchCommitDur      prometheus.Histogram
	SinkCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	SinkCircuitBreakerTrips prometheus.Counter

	NotificationDroppedTotal prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		IngestionMessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_ingestion_messages_total",
			Help: "Total messages received from exchange streams and pollers",
		}),
		IngestionDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_ingestion_dropped_total",
			Help: "Ingestion messages dropped, by reason",
		}, []string{"reason"}),
		WSReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		ValidationFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_validation_failures_total",
			Help: "Payload validation failures, by reason",
		}, []string{"reason"}),

		FeaturesComputedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_features_computed_total",
			Help: "Total symbol/timeframe feature recomputations",
		}),
		FeatureComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_feature_compute_duration_seconds",
			Help:    "Feature Engine per-symbol compute latency",
			Buckets: prometheus.DefBuckets,
		}),

		EventsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_events_emitted_total",
			Help: "Events raised by the Event Engine, by type",
		}, []string{"type"}),
		EventsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_events_dropped_total",
			Help: "Events dropped because the Event Queue was full",
		}),
		EventQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_event_queue_depth",
			Help: "Current Event Queue occupancy",
		}),

		SignalsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_signals_emitted_total",
			Help: "Signals armed by the Signal Engine, by direction",
		}, []string{"direction"}),
		SignalsFilteredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_signals_filtered_total",
			Help: "Candidate signals rejected, by the gate that rejected them",
		}, []string{"gate"}),

		TrackerOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_tracker_outcomes_total",
			Help: "Tracked signal resolutions, by outcome",
		}, []string{"outcome"}),

		SinkBatchCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_sink_batch_commit_duration_seconds",
			Help:    "Persistence Sink batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SinkCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_sink_circuit_breaker_state",
			Help: "Persistence Sink circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		SinkCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_sink_circuit_breaker_trips_total",
			Help: "Times the Persistence Sink circuit breaker tripped open",
		}),

		NotificationDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_notification_dropped_total",
			Help: "Signals dropped because the notification dispatch queue was full",
		}),
	}

	prometheus.MustRegister(
		m.IngestionMessagesTotal,
		m.IngestionDroppedTotal,
		m.WSReconnectsTotal,
		m.ValidationFailuresTotal,
		m.FeaturesComputedTotal,
		m.FeatureComputeDur,
		m.EventsEmittedTotal,
		m.EventsDroppedTotal,
		m.EventQueueDepth,
		m.SignalsEmittedTotal,
		m.SignalsFilteredTotal,
		m.TrackerOutcomesTotal,
		m.SinkBatchCommitDur,
		m.SinkCircuitBreakerState,
		m.SinkCircuitBreakerTrips,
		m.NotificationDroppedTotal,
	)

	return m
}

// HealthStatus represents the system's liveness snapshot.
type HealthStatus struct {
	mu sync.RWMutex

	IngestionConnected bool      `json:"ingestion_connected"`
	LastMessageTime    time.Time `json:"last_message_time"`
	UpdateBusConnected bool      `json:"update_bus_connected"`
	SinkOK             bool      `json:"sink_ok"`
	Symbols            []string  `json:"symbols"`

	UpdateBusLatencyMs float64   `json:"update_bus_latency_ms"`
	SinkLatencyMs      float64   `json:"sink_latency_ms"`
	LastCheckAt        time.Time `json:"last_check_at"`
	StartedAt          time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetIngestionConnected(v bool) {
	h.mu.Lock()
	h.IngestionConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastMessageTime(t time.Time) {
	h.mu.Lock()
	h.LastMessageTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

func (h *HealthStatus) SetSinkOK(v bool) {
	h.mu.Lock()
	h.SinkOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetUpdateBusConnected(v bool) {
	h.mu.Lock()
	h.UpdateBusConnected = v
	h.mu.Unlock()
}

// CheckUpdateBus pings the Redis Streams backend and records latency.
func (h *HealthStatus) CheckUpdateBus(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.UpdateBusConnected = err == nil
	h.UpdateBusLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSink runs a trivial query against the sink's SQLite database.
func (h *HealthStatus) CheckSink(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SinkOK = err == nil
	h.SinkLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks in the background.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sinkDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckUpdateBus(probeCtx, rdb)
				}
				if sinkDB != nil {
					h.CheckSink(probeCtx, sinkDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.IngestionConnected || !h.UpdateBusConnected || !h.SinkOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.UpdateBusConnected && !h.SinkOK {
		overallStatus = "unhealthy"
	}

	messageAge := ""
	if !h.LastMessageTime.IsZero() {
		messageAge = time.Since(h.LastMessageTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status             string   `json:"status"`
		Uptime             string   `json:"uptime"`
		IngestionConnected bool     `json:"ingestion_connected"`
		LastMessageTime    string   `json:"last_message_time"`
		MessageAge         string   `json:"message_age"`
		UpdateBusConnected bool     `json:"update_bus_connected"`
		UpdateBusLatencyMs float64  `json:"update_bus_latency_ms"`
		SinkOK             bool     `json:"sink_ok"`
		SinkLatencyMs      float64  `json:"sink_latency_ms"`
		Symbols            []string `json:"symbols"`
		LastCheckAt        string   `json:"last_check_at"`
	}{
		Status:             overallStatus,
		Uptime:             time.Since(h.StartedAt).Round(time.Second).String(),
		IngestionConnected: h.IngestionConnected,
		LastMessageTime:    h.LastMessageTime.Format(time.RFC3339),
		MessageAge:         messageAge,
		UpdateBusConnected: h.UpdateBusConnected,
		UpdateBusLatencyMs: h.UpdateBusLatencyMs,
		SinkOK:             h.SinkOK,
		SinkLatencyMs:      h.SinkLatencyMs,
		Symbols:            h.Symbols,
		LastCheckAt:        h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics: server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics: server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
