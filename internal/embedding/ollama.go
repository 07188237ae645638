package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// Ollama embeds through a local Ollama server's /api/embed endpoint.
type Ollama struct {
	client    *api.Client
	model     string
	dimension int
	logger    *slog.Logger
}

func NewOllama(baseURL, model string, dimension int, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama url %q: %w", baseURL, err)
	}
	return &Ollama{
		client:    api.NewClient(u, &http.Client{Timeout: timeout}),
		model:     model,
		dimension: dimension,
		logger:    slog.Default().With("component", "ollama-embedder"),
	}, nil
}

func (o *Ollama) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	o.logger.Debug("generating embeddings", "count", len(texts))
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return resp.Embeddings, nil
}

func (o *Ollama) Dimension() int { return o.dimension }

func (o *Ollama) Name() string { return "ollama:" + o.model }
