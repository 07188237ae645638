package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestCollectorFlushesOnBatchSizeAndClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 100, 2, time.Hour)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Mode: "citation"})
	c.Track(SearchEvent{Type: EventSearch, Mode: "theme"})
	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	c.Track(IndexEvent{Type: EventIndex, Flavor: "granular"})
	c.Close()
	assert.Equal(t, 3, pub.count())
	assert.Equal(t, "granular", pub.batches[len(pub.batches)-1][0].Key)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 1, 10, time.Hour)
	c.Track(SearchEvent{Type: EventSearch})
	c.Track(SearchEvent{Type: EventSearch})
	c.Start(context.Background())
	c.Close()
	assert.Equal(t, 1, pub.count())

	var nilCollector *Collector
	nilCollector.Track(SearchEvent{})
	nilCollector.Close()
}

func TestLocalPublisherFeedsAggregator(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(LocalPublisher{Aggregator: agg}, 10, 1, time.Hour)
	c.Start(context.Background())
	c.Track(SearchEvent{Type: EventSearch, Mode: "citation", Query: "Olhos de ressaca", Outcome: OutcomeOK, LatencyMs: 12})
	c.Track(IndexEvent{Type: EventIndex, Flavor: "granular", Status: "PROCESSED", Rows: 40})
	c.Close()

	s := agg.Stats()
	assert.Equal(t, int64(1), s.TotalSearches)
	assert.Equal(t, int64(40), s.RowsIndexed["granular"])
	assert.Equal(t, int64(1), s.WorksByStatus["PROCESSED"])
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 3; i++ {
		agg.RecordSearch(SearchEvent{Mode: "theme", Query: "O  Amor", Outcome: OutcomeOK, LatencyMs: int64(10 * (i + 1))})
	}
	agg.RecordSearch(SearchEvent{Mode: "citation", Query: "xyz", Outcome: OutcomeZeroResult, LatencyMs: 5, CacheHit: true})

	s := agg.Stats()
	assert.Equal(t, int64(4), s.TotalSearches)
	assert.Equal(t, int64(3), s.SearchesByMode["theme"])
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(3), s.CacheMisses)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, QueryCount{Query: "o amor", Count: 3}, s.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "xyz", Count: 1}}, s.ZeroResultQueries)
	assert.InDelta(t, 16.25, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(30), s.P99LatencyMs)

	agg.Restore(AggregatedStats{TotalSearches: 10, SearchesByMode: map[string]int64{"theme": 7}})
	s = agg.Stats()
	assert.Equal(t, int64(14), s.TotalSearches)
	assert.Equal(t, int64(10), s.SearchesByMode["theme"])
}

func TestHandleMessageDispatchesOnType(t *testing.T) {
	agg := NewAggregator()
	search, _ := json.Marshal(SearchEvent{Type: EventSearch, Mode: "citation", Outcome: OutcomeOK})
	index, _ := json.Marshal(IndexEvent{Type: EventIndex, Flavor: "context", Rows: 7, Status: "PROCESSED"})

	require.NoError(t, agg.HandleMessage(context.Background(), nil, search))
	require.NoError(t, agg.HandleMessage(context.Background(), nil, index))
	assert.ErrorIs(t, agg.HandleMessage(context.Background(), nil, []byte("not json")), kafka.ErrMalformed)

	s := agg.Stats()
	assert.Equal(t, int64(1), s.TotalSearches)
	assert.Equal(t, int64(7), s.RowsIndexed["context"])
}

func TestHandlerServesStats(t *testing.T) {
	agg := NewAggregator()
	agg.RecordSearch(SearchEvent{Mode: "citation", Query: "capitu", Outcome: OutcomeOK})
	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(1), body.TotalSearches)
}

func TestHandlerQueryParameters(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"capitu", "bentinho", "escobar"} {
		agg.RecordSearch(SearchEvent{Mode: "theme", Query: q, Outcome: OutcomeOK})
	}
	agg.RecordIndex(IndexEvent{Flavor: "granular", Rows: 12})
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.TopQueries, 2)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?section=index", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var index map[string]map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&index))
	assert.Equal(t, int64(12), index["rows_indexed"]["granular"])

	for _, target := range []string{"/api/v1/analytics?top=0", "/api/v1/analytics?top=x", "/api/v1/analytics?section=works"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestSnapshotStore(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s := NewSnapshotStore(database.NewFromDB(db, database.DriverSQLite))
	require.NoError(t, s.EnsureSchema(ctx))

	latest, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, s.SaveSnapshot(ctx, AggregatedStats{TotalSearches: 3}))
	require.NoError(t, s.SaveSnapshot(ctx, AggregatedStats{TotalSearches: 5}))
	latest, err = s.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(5), latest.TotalSearches)

	require.NoError(t, s.SaveSnapshot(ctx, AggregatedStats{TotalSearches: 8}))
	pruned, err := s.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)
	latest, err = s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), latest.TotalSearches)

	agg := NewAggregator()
	agg.RecordSearch(SearchEvent{Mode: "theme", Outcome: OutcomeOK})
	runCtx, cancel := context.WithCancel(ctx)
	done := s.StartPeriodicSave(runCtx, agg, time.Hour)
	cancel()
	<-done
	latest, err = s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.TotalSearches)
}
