// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTurn(t *testing.T) {
	m := New()

	m.RecordTurn(5, 2*time.Second, nil)
	m.RecordTurn(2, time.Second, errors.New("aborted"))
	m.RecordTurn(0, 0, context.Canceled)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(ResultCancelled)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.TokensTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StreamDuration))
}

func TestRecordModelOps(t *testing.T) {
	m := New()

	m.RecordModelLoad(nil)
	m.RecordModelLoad(errors.New("404"))
	m.RecordModelFetch(nil)
	m.RecordRetry("fetch_models")
	m.RecordSave()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelLoadsTotal.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelLoadsTotal.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelFetches.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("fetch_models")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsSaved))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTurn(1, time.Second, nil)
		m.RecordModelLoad(nil)
		m.RecordModelFetch(nil)
		m.RecordRetry("chat")
		m.RecordSave()
	})
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordSave()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SessionsSaved))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordTurn(3, time.Second, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `deepgate_chat_turns_total{result="success"} 1`)
	assert.Contains(t, body, "deepgate_stream_tokens_total 3")
}

func TestServe(t *testing.T) {
	m := New()
	srv, err := Serve("127.0.0.1:0", m, zerolog.Nop())
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "deepgate_stream_tokens_total"))
	assert.True(t, strings.Contains(string(data), "go_goroutines"))
}
