package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
)

func newTestServer(t *testing.T, build bool, cache *QueryCache) (*http.ServeMux, *metrics.Metrics) {
	t.Helper()
	f := newFixture(t, DefaultOptions(), build)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	mux := http.NewServeMux()
	NewHandler(f.service, cache, nil, m).Register(mux)
	return mux, m
}

func post(mux http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCitation(t *testing.T) {
	mux, m := newTestServer(t, true, nil)

	rec := post(mux, "/api/v1/search/citation", `{"text": "Capitu tinha olhos de ressaca."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Results []CitationResult `json:"results"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, len(resp.Results), resp.Count)
	assert.Equal(t, "Machado de Assis", resp.Results[0].Work.Author)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(ModeCitation, "ok")))
}

func TestHandlerErrors(t *testing.T) {
	mux, m := newTestServer(t, false, nil)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"malformed json", "/api/v1/search/theme", `{"text":`, http.StatusBadRequest},
		{"short query", "/api/v1/search/citation", `{"text": "oi"}`, http.StatusBadRequest},
		{"index missing", "/api/v1/search/theme", `{"text": "Verdes mares bravios."}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(mux, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(ModeTheme, "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(ModeCitation, "invalid")))
}

func TestHandlerUsesCache(t *testing.T) {
	cache := NewQueryCache(newMemBackend(), time.Minute, nil)
	mux, _ := newTestServer(t, true, cache)

	first := post(mux, "/api/v1/search/theme", `{"text": "Verdes mares bravios."}`)
	require.Equal(t, http.StatusOK, first.Code)
	second := post(mux, "/api/v1/search/theme", `{"text": "Verdes  mares bravios."}`)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Empty(t, first.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Contains(t, first.Header().Get("Server-Timing"), "embed;dur=")
	assert.Empty(t, second.Header().Get("Server-Timing"))

	hits, misses := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), `"hit_rate":"50.0%"`)

	rec = post(mux, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"keys_deleted":1`)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range events {
		if se, ok := ev.Value.(analytics.SearchEvent); ok {
			p.events = append(p.events, se)
		}
	}
	return nil
}

func TestHandlerTracksSentencesOnlyWhenComputed(t *testing.T) {
	f := newFixture(t, DefaultOptions(), true)
	pub := &recordingPublisher{}
	collector := analytics.NewCollector(pub, 16, 16, time.Hour)
	collector.Start(context.Background())
	mux := http.NewServeMux()
	NewHandler(f.service, NewQueryCache(newMemBackend(), time.Minute, nil), collector, nil).Register(mux)

	for i := 0; i < 2; i++ {
		rec := post(mux, "/api/v1/search/theme", `{"text": "Verdes mares bravios. O sertão vai virar mar."}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	collector.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 2)
	assert.False(t, pub.events[0].CacheHit)
	assert.Equal(t, 2, pub.events[0].Sentences)
	assert.True(t, pub.events[1].CacheHit)
	assert.Zero(t, pub.events[1].Sentences)
}

func TestHandlerIndexStats(t *testing.T) {
	mux, _ := newTestServer(t, true, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/index/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Indexes []IndexStats `json:"indexes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Indexes, 2)
	assert.True(t, body.Indexes[0].Loaded)

	rec = post(mux, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
