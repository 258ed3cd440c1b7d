package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New(DefaultConfig())

	r.CacheHit(CacheMatch)
	r.CacheHit(CacheMatch)
	r.CacheMiss(CacheEmbedding)
	r.EmbeddingCall("local", 3, nil)
	r.EmbeddingCall("openai", 1, errors.New("boom"))
	r.Degraded(SignalGraph)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheHits.WithLabelValues(CacheMatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheMisses.WithLabelValues(CacheEmbedding)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.embeddingCalls.WithLabelValues("local", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.embeddingCalls.WithLabelValues("openai", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.embeddingTexts))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.degraded.WithLabelValues(SignalGraph)))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.CacheHit(CacheMatch)
		r.CacheMiss(CacheMatch)
		r.EmbeddingCall("local", 1, nil)
		r.Degraded(SignalEmbedding)
		r.MatchRequest("developers", "ok", 3, time.Millisecond)
		r.TeamSelection("ok")
	})
	assert.Nil(t, r.Registry())
}

func TestRecorder_Handler(t *testing.T) {
	r := New(Config{})
	r.MatchRequest("developers", "ok", 5, 20*time.Millisecond)
	r.TeamSelection("ok")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.Contains(out, "devmatch_match_requests_total"))
	assert.True(t, strings.Contains(out, "devmatch_match_latency_seconds"))
	assert.True(t, strings.Contains(out, "devmatch_team_selections_total"))
}
