// Package pipeline turns a work's text file into filtered chunks ready for
// embedding: read, sanitize, segment, chunk, filter.
package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/chunker"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/filter"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/text"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
)

// Policy is one index flavor's chunking window and quality filter.
type Policy struct {
	Name   string
	Chunk  chunker.Policy
	Filter filter.Filter
}

// Default policies.
var (
	Granular = Policy{Name: "granular", Chunk: chunker.Granular, Filter: filter.Granular}
	Context  = Policy{Name: "context", Chunk: chunker.Context, Filter: filter.Context}
)

// PolicyFromConfig builds a policy from a flavor's chunking settings; an
// empty denylist falls back to the default one.
func PolicyFromConfig(name string, cfg config.ChunkingConfig, denylist []string) Policy {
	if len(denylist) == 0 {
		denylist = filter.DefaultDenylist
	}
	return Policy{
		Name:   name,
		Chunk:  chunker.Policy{Size: cfg.Size, Stride: cfg.Stride},
		Filter: filter.Filter{MinLength: cfg.MinLength, MaxLength: cfg.MaxLength, Denylist: denylist},
	}
}

// Result is the outcome of processing one work under one policy.
type Result struct {
	Chunks    []chunker.Chunk
	Stats     filter.Stats
	Sentences int
	// TooShort is set when the work has fewer sentences than one window.
	TooShort        bool
	FallbackDecoded bool
}

// Processor runs the text stages. Relative text paths resolve against
// BaseDir.
type Processor struct {
	BaseDir   string
	segmenter text.Segmenter
	logger    *slog.Logger
}

func NewProcessor(baseDir string, segmenter text.Segmenter) *Processor {
	if segmenter == nil {
		segmenter = text.NewRuleSegmenter()
	}
	return &Processor{
		BaseDir:   baseDir,
		segmenter: segmenter,
		logger:    slog.Default().With("component", "pipeline"),
	}
}

// Path resolves a work's text path.
func (p *Processor) Path(rel string) string {
	if filepath.IsAbs(rel) || p.BaseDir == "" {
		return rel
	}
	return filepath.Join(p.BaseDir, rel)
}

// Sentences reads and segments a work's text once so several policies can
// share the result.
func (p *Processor) Sentences(w *catalog.Work) ([]string, bool, error) {
	raw, fallback, err := text.ReadFile(p.Path(w.TextPath))
	if err != nil {
		return nil, false, fmt.Errorf("reading text of work %d: %w", w.ID, err)
	}
	if fallback {
		p.logger.Warn("text is not valid UTF-8, decoded as latin-1", "work_id", w.ID, "path", w.TextPath)
	}
	return p.segmenter.Segment(text.Sanitize(raw)), fallback, nil
}

// Process runs every stage for one work.
func (p *Processor) Process(w *catalog.Work, policy Policy) (*Result, error) {
	sentences, fallback, err := p.Sentences(w)
	if err != nil {
		return nil, err
	}
	res, err := Apply(w.ID, sentences, policy)
	if err != nil {
		return nil, err
	}
	res.FallbackDecoded = fallback
	if res.TooShort {
		p.logger.Info("work too short for one window",
			"work_id", w.ID,
			"policy", policy.Name,
			"sentences", res.Sentences,
			"window", policy.Chunk.Size,
		)
	}
	return res, nil
}

// Apply chunks and filters already segmented sentences.
func Apply(workID int64, sentences []string, policy Policy) (*Result, error) {
	if err := policy.Chunk.Validate(); err != nil {
		return nil, err
	}
	res := &Result{Sentences: len(sentences)}
	if len(sentences) < policy.Chunk.Size {
		res.TooShort = true
		return res, nil
	}
	res.Chunks, res.Stats = policy.Filter.Apply(chunker.Split(workID, sentences, policy.Chunk))
	return res, nil
}
