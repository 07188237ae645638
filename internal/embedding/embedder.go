// Package embedding turns text into dense vectors. It defines the Embedder
// contract, remote and local providers, and a Batcher that splits large
// inputs into concurrent batches with an explicit failure policy.
package embedding

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/resilience"
)

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the vector length, or 0 when unknown until the first call.
	Dimension() int
	Name() string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the configured provider, wrapped with retry and a circuit
// breaker for remote backends and with the on-disk cache when CacheDir is
// set. The returned closer releases the cache.
func New(cfg config.EmbeddingConfig, m *metrics.Metrics) (Embedder, io.Closer, error) {
	var (
		base Embedder
		err  error
	)
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		base, err = NewOpenAI(cfg.BaseURL, cfg.Token, cfg.Model, cfg.Dimension)
	case "ollama":
		base, err = NewOllama(cfg.BaseURL, cfg.Model, cfg.Dimension, cfg.Timeout)
	case "hash":
		base = NewHash(cfg.Dimension)
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s embedder: %w", cfg.Provider, err)
	}

	e := base
	if _, local := base.(*Hash); !local {
		e = NewResilient(base, resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(name string, to resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		}, resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 250 * time.Millisecond})
	}
	if cfg.CacheDir == "" {
		return e, nopCloser{}, nil
	}
	cached, err := NewCached(e, cfg.CacheDir, false)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached, nil
}
