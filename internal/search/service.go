// Package search answers citation and thematic queries over the loaded
// index snapshots, and serves them over HTTP with a shared result cache.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/lexical"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/scorer"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/text"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/scriptura/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/tracing"
)

// Query modes.
const (
	ModeCitation = "citation"
	ModeTheme    = "theme"
)

// Catalog resolves work ids to catalog records. Missing ids are absent from
// the returned map.
type Catalog interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]*catalog.Work, error)
}

type Options struct {
	MinQueryLength       int
	CitationTopK         int
	CitationWorks        int
	Fusion               scorer.Fusion
	Aggregation          scorer.Aggregation
	InferenceTimeout     time.Duration
	CatalogTimeout       time.Duration
	MaxConcurrentQueries int
}

func DefaultOptions() Options {
	return Options{
		MinQueryLength:       5,
		CitationTopK:         20,
		CitationWorks:        3,
		Fusion:               scorer.DefaultFusion,
		Aggregation:          scorer.DefaultAggregation,
		InferenceTimeout:     20 * time.Second,
		CatalogTimeout:       3 * time.Second,
		MaxConcurrentQueries: 8,
	}
}

func OptionsFromConfig(cfg config.SearchConfig) Options {
	return Options{
		MinQueryLength: cfg.MinQueryLength,
		CitationTopK:   cfg.CitationTopK,
		CitationWorks:  cfg.CitationWorks,
		Fusion: scorer.Fusion{
			Policy:        cfg.Fusion.Policy,
			DenseWeight:   cfg.Fusion.DenseWeight,
			LexicalWeight: cfg.Fusion.LexicalWeight,
		},
		Aggregation: scorer.Aggregation{
			Policy:     cfg.Aggregation.Policy,
			PerWorkCap: cfg.Aggregation.PerWorkCap,
			TopWorks:   cfg.Aggregation.TopWorks,
			PoolSize:   cfg.Aggregation.PoolSize,
			Cutoff:     cfg.Aggregation.Cutoff,
		},
		InferenceTimeout:     cfg.InferenceTimeout,
		CatalogTimeout:       cfg.CatalogTimeout,
		MaxConcurrentQueries: cfg.MaxConcurrentQueries,
	}
}

// WorkRef is the catalog data attached to a citation.
type WorkRef struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Year        *int   `json:"year"`
	Genre       string `json:"genre,omitempty"`
	Movement    string `json:"movement,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

type CitationResult struct {
	Score       float64 `json:"score"`
	MatchedText string  `json:"matched_text"`
	Work        WorkRef `json:"work"`
}

// ThemeWork is the short catalog reference attached to a theme hit.
type ThemeWork struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type ThemeResult struct {
	FusedScore   float64   `json:"fused_score"`
	DenseScore   float64   `json:"dense_score"`
	LexicalScore float64   `json:"lexical_score"`
	ChunkText    string    `json:"chunk_text"`
	Work         ThemeWork `json:"work"`
}

// Service holds the current index of each flavor behind an atomic pointer.
// Queries read whatever generation is loaded when they start; Reload swaps
// in a new one without blocking them.
type Service struct {
	indexes   map[string]*atomic.Pointer[Index]
	stores    map[string]*indexstore.Store
	embedder  embedding.Embedder
	segmenter text.Segmenter
	catalog   Catalog
	opts      Options
	sem       *semaphore.Weighted
	metrics   *metrics.Metrics
	reloadMu  sync.Mutex
	onReload  []func(flavor string, generation uint64)
	logger    *slog.Logger
}

func NewService(stores []*indexstore.Store, e embedding.Embedder, seg text.Segmenter, cat Catalog, opts Options, m *metrics.Metrics) (*Service, error) {
	if err := opts.Fusion.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Aggregation.Validate(); err != nil {
		return nil, err
	}
	if opts.CitationTopK < 1 || opts.CitationWorks < 1 {
		return nil, fmt.Errorf("citation topK and works must be >= 1")
	}
	if opts.MaxConcurrentQueries < 1 {
		opts.MaxConcurrentQueries = 1
	}
	if seg == nil {
		seg = text.NewRuleSegmenter()
	}
	s := &Service{
		indexes:   make(map[string]*atomic.Pointer[Index]),
		stores:    make(map[string]*indexstore.Store),
		embedder:  e,
		segmenter: seg,
		catalog:   cat,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrentQueries)),
		metrics:   m,
		logger:    slog.Default().With("component", "search"),
	}
	for _, st := range stores {
		s.stores[st.Flavor()] = st
		s.indexes[st.Flavor()] = &atomic.Pointer[Index]{}
	}
	return s, nil
}

// OnReload registers fn to run after every successful swap.
func (s *Service) OnReload(fn func(flavor string, generation uint64)) {
	s.onReload = append(s.onReload, fn)
}

// Current returns the loaded index of flavor, or nil.
func (s *Service) Current(flavor string) *Index {
	p, ok := s.indexes[flavor]
	if !ok {
		return nil
	}
	return p.Load()
}

// Generation of the loaded flavor, 0 when nothing is loaded.
func (s *Service) Generation(flavor string) uint64 {
	if idx := s.Current(flavor); idx != nil {
		return idx.Snapshot.Generation
	}
	return 0
}

// Reload loads flavor's latest generation and swaps it in. Reloading the
// generation already loaded is a no-op.
func (s *Service) Reload(ctx context.Context, flavor string) error {
	store, ok := s.stores[flavor]
	if !ok {
		return fmt.Errorf("unknown index flavor %q", flavor)
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	snap, err := store.Load()
	if err != nil {
		s.observeReload(flavor, "error")
		return fmt.Errorf("loading %s index: %w", flavor, err)
	}
	ptr := s.indexes[flavor]
	if cur := ptr.Load(); cur != nil && cur.Snapshot.Generation == snap.Generation {
		return nil
	}
	ptr.Store(newIndex(snap))
	s.observeReload(flavor, "ok")
	if s.metrics != nil {
		s.metrics.IndexRows.WithLabelValues(flavor).Set(float64(snap.Len()))
	}
	s.logger.Info("index loaded",
		"flavor", flavor,
		"rows", snap.Len(),
		"generation", snap.Generation,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	for _, fn := range s.onReload {
		fn(flavor, snap.Generation)
	}
	return nil
}

// ReloadAll loads every flavor. A missing index is logged, not returned;
// its endpoints answer 503 until it appears.
func (s *Service) ReloadAll(ctx context.Context) error {
	for flavor := range s.stores {
		err := s.Reload(ctx, flavor)
		switch {
		case err == nil:
		case errors.Is(err, indexstore.ErrIndexNotFound):
			s.logger.Warn("index not built yet", "flavor", flavor)
		default:
			return err
		}
	}
	return nil
}

// HandleIndexUpdated reloads the flavor named in an index-updated message.
func (s *Service) HandleIndexUpdated(ctx context.Context, key []byte, value []byte) error {
	ev, err := kafka.DecodeJSON[indexstore.UpdateEvent](value)
	if err != nil {
		return err
	}
	if _, ok := s.stores[ev.Flavor]; !ok {
		return nil
	}
	return s.Reload(ctx, ev.Flavor)
}

// Stats describes every configured flavor.
func (s *Service) Stats() []IndexStats {
	out := make([]IndexStats, 0, len(s.indexes))
	for _, flavor := range []string{indexstore.Granular, indexstore.Context} {
		if _, ok := s.indexes[flavor]; !ok {
			continue
		}
		st := IndexStats{Flavor: flavor}
		if idx := s.Current(flavor); idx != nil {
			st.Loaded = true
			st.Rows = idx.Snapshot.Len()
			st.Dimension = idx.Snapshot.Dim
			st.Generation = idx.Snapshot.Generation
			st.LoadedAt = idx.LoadedAt
			if idx.Lexical != nil {
				st.Terms = idx.Lexical.Terms()
			}
		}
		out = append(out, st)
	}
	return out
}

func (s *Service) observeReload(flavor, status string) {
	if s.metrics != nil {
		s.metrics.IndexReloadsTotal.WithLabelValues(flavor, status).Inc()
	}
}

func (s *Service) require(flavor string) (*Index, error) {
	idx := s.Current(flavor)
	if idx == nil {
		return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, http.StatusServiceUnavailable,
			"%s index is not loaded", flavor)
	}
	return idx, nil
}

// sentences validates and segments a raw query.
func (s *Service) sentences(raw string) ([]string, error) {
	if utf8.RuneCountInString(raw) < s.opts.MinQueryLength {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"text must have at least %d characters", s.opts.MinQueryLength)
	}
	out := s.segmenter.Segment(text.Sanitize(raw))
	if len(out) == 0 {
		return nil, apperrors.New(apperrors.ErrNoSentences, http.StatusUnprocessableEntity,
			"no valid sentence found in the query")
	}
	return out, nil
}

func (s *Service) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracing.StartChildSpan(ctx, "embed")
	defer span.End()
	span.SetAttr("sentences", len(texts))

	vectors, err := resilience.Within(ctx, s.opts.InferenceTimeout, "inference", func(ctx context.Context) ([][]float32, error) {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.sem.Release(1)
		return s.embedder.EmbedTexts(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable, "query embedding timed out")
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", apperrors.ErrEmbedding, len(vectors), len(texts))
	}
	return vectors, nil
}

// lookup fetches every distinct work once per request.
func (s *Service) lookup(ctx context.Context, candidates []scorer.Candidate) (map[int64]*catalog.Work, error) {
	seen := make(map[int64]struct{}, len(candidates))
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.WorkID]; ok {
			continue
		}
		seen[c.WorkID] = struct{}{}
		ids = append(ids, c.WorkID)
	}
	if len(ids) == 0 {
		return map[int64]*catalog.Work{}, nil
	}
	ctx, span := tracing.StartChildSpan(ctx, "catalog")
	defer span.End()

	works, err := resilience.Within(ctx, s.opts.CatalogTimeout, "catalog", func(ctx context.Context) (map[int64]*catalog.Work, error) {
		return s.catalog.GetMany(ctx, ids)
	})
	switch {
	case err == nil:
		return works, nil
	case errors.Is(err, context.DeadlineExceeded):
		return nil, apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable, "catalog lookup timed out")
	case errors.Is(err, apperrors.ErrCatalogUnavailable):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCatalogUnavailable, err)
	}
}

func checkDimension(idx *Index, vec []float32) error {
	if idx.Snapshot.Len() > 0 && len(vec) != idx.Snapshot.Dim {
		return apperrors.Newf(apperrors.ErrIndexUnavailable, http.StatusServiceUnavailable,
			"query embedding has dimension %d but the %s index has %d", len(vec), idx.Flavor, idx.Snapshot.Dim)
	}
	return nil
}

// Citation finds the works whose sentences are closest to the first
// sentence of raw, at most one hit per work.
func (s *Service) Citation(ctx context.Context, raw string) ([]CitationResult, error) {
	sentences, err := s.sentences(raw)
	if err != nil {
		return nil, err
	}
	return s.citation(ctx, sentences)
}

func (s *Service) citation(ctx context.Context, sentences []string) ([]CitationResult, error) {
	idx, err := s.require(indexstore.Granular)
	if err != nil {
		return nil, err
	}
	vectors, err := s.embed(ctx, sentences[:1])
	if err != nil {
		return nil, err
	}
	if err := checkDimension(idx, vectors[0]); err != nil {
		return nil, err
	}

	_, span := tracing.StartChildSpan(ctx, "score")
	scores := scorer.Cosine(vectors[0], idx.Snapshot)
	rows := scorer.TopK(scores, s.opts.CitationTopK)
	candidates := scorer.Candidates(rows, scores, idx.workOf)
	span.End()

	works, err := s.lookup(ctx, candidates)
	if err != nil {
		return nil, err
	}

	present := make([]scorer.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if works[c.WorkID] != nil {
			present = append(present, c)
		}
	}
	results := make([]CitationResult, 0, s.opts.CitationWorks)
	for _, c := range scorer.DedupByWork(present, s.opts.CitationWorks) {
		w := works[c.WorkID]
		results = append(results, CitationResult{
			Score:       scorer.Round(c.Score, 4),
			MatchedText: idx.Snapshot.Chunks[c.Row].Text,
			Work: WorkRef{
				ID:          w.ID,
				Title:       w.Title,
				Author:      w.Author,
				Year:        w.Year,
				Genre:       w.Genre,
				Movement:    w.Movement,
				DownloadURL: w.DownloadURL(),
			},
		})
	}
	return results, nil
}

// Theme ranks context chunks by fused dense and BM25 relevance to the whole
// query, then rolls the hits up per work.
func (s *Service) Theme(ctx context.Context, raw string) ([]ThemeResult, error) {
	sentences, err := s.sentences(raw)
	if err != nil {
		return nil, err
	}
	return s.theme(ctx, sentences)
}

func (s *Service) theme(ctx context.Context, sentences []string) ([]ThemeResult, error) {
	idx, err := s.require(indexstore.Context)
	if err != nil {
		return nil, err
	}
	vectors, err := s.embed(ctx, sentences)
	if err != nil {
		return nil, err
	}
	mean := scorer.MeanVector(vectors)
	if err := checkDimension(idx, mean); err != nil {
		return nil, err
	}
	if idx.Snapshot.Len() == 0 {
		return []ThemeResult{}, nil
	}

	_, span := tracing.StartChildSpan(ctx, "score")
	dense := scorer.MinMax(scorer.Cosine(mean, idx.Snapshot), scorer.DefaultEpsilon)
	tokens := lexical.Tokenize(strings.ToLower(strings.Join(sentences, " ")))
	lex := scorer.MinMax(idx.Lexical.Scores(tokens), scorer.DefaultEpsilon)
	fused := s.opts.Fusion.Fuse(dense, lex)

	pool := scorer.TopK(fused, s.opts.Aggregation.PoolSize)
	hits := s.opts.Aggregation.Apply(scorer.Candidates(pool, fused, idx.workOf))
	span.End()

	works, err := s.lookup(ctx, hits)
	if err != nil {
		return nil, err
	}

	results := make([]ThemeResult, 0, len(hits))
	for _, c := range hits {
		w := works[c.WorkID]
		if w == nil {
			continue
		}
		results = append(results, ThemeResult{
			FusedScore:   scorer.Round(c.Score, 6),
			DenseScore:   scorer.Round(dense[c.Row], 6),
			LexicalScore: scorer.Round(lex[c.Row], 6),
			ChunkText:    idx.Snapshot.Chunks[c.Row].Text,
			Work:         ThemeWork{ID: w.ID, Title: w.Title, Author: w.Author},
		})
	}
	return results, nil
}
