// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Result labels.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultCancelled = "cancelled"
)

// Metrics holds the Prometheus collectors for one client process. Each
// instance has its own registry so tests never collide.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal      *prometheus.CounterVec
	TokensTotal     prometheus.Counter
	ModelLoadsTotal *prometheus.CounterVec
	ModelFetches    *prometheus.CounterVec
	StreamDuration  prometheus.Histogram
	RetriesTotal    *prometheus.CounterVec
	SessionsSaved   prometheus.Counter
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.TurnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepgate_chat_turns_total",
			Help: "Total number of chat turns by result",
		},
		[]string{"result"},
	)

	m.TokensTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "deepgate_stream_tokens_total",
			Help: "Total number of visible tokens received from completion streams",
		},
	)

	m.ModelLoadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepgate_model_loads_total",
			Help: "Total number of model load requests by result",
		},
		[]string{"result"},
	)

	m.ModelFetches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepgate_model_fetches_total",
			Help: "Total number of model list requests by result",
		},
		[]string{"result"},
	)

	m.StreamDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepgate_stream_duration_seconds",
			Help:    "Duration of completion streams in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	m.RetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepgate_retries_total",
			Help: "Total number of user-confirmed retries by operation",
		},
		[]string{"operation"},
	)

	m.SessionsSaved = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "deepgate_sessions_saved_total",
			Help: "Total number of session snapshots persisted",
		},
	)

	reg.MustRegister(collectors.NewGoCollector())

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// result maps an error to a result label.
func result(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, context.Canceled):
		return ResultCancelled
	default:
		return ResultFailure
	}
}

// RecordTurn records one finished chat turn. A nil receiver is a no-op so
// callers can run without metrics.
func (m *Metrics) RecordTurn(tokens int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(result(err)).Inc()
	m.TokensTotal.Add(float64(tokens))
	m.StreamDuration.Observe(duration.Seconds())
}

// RecordModelLoad records a model load request.
func (m *Metrics) RecordModelLoad(err error) {
	if m == nil {
		return
	}
	m.ModelLoadsTotal.WithLabelValues(result(err)).Inc()
}

// RecordModelFetch records a model list request.
func (m *Metrics) RecordModelFetch(err error) {
	if m == nil {
		return
	}
	m.ModelFetches.WithLabelValues(result(err)).Inc()
}

// RecordRetry records a retry the user accepted.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// RecordSave records a persisted session snapshot.
func (m *Metrics) RecordSave() {
	if m == nil {
		return
	}
	m.SessionsSaved.Inc()
}

// =============================================================================
// HTTP ENDPOINT
// =============================================================================

// Handler returns the /metrics handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server serves /metrics in the background.
type Server struct {
	srv      *http.Server
	listener net.Listener
	log      zerolog.Logger
}

// Serve starts serving m on addr. Use "127.0.0.1:0" for an ephemeral port.
func Serve(addr string, m *Metrics, log zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		log:      log,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("metrics server listening")
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
