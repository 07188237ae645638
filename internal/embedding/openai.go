package embedding

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI embeds through any OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

// NewOpenAI creates the client. Local OpenAI-compatible servers usually
// ignore the token, so an empty token is sent as "none".
func NewOpenAI(baseURL, token, model string, dimension int) (*OpenAI, error) {
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return &OpenAI{
		embedder:  embedder,
		model:     model,
		dimension: dimension,
		logger:    slog.Default().With("component", "openai-embedder"),
	}, nil
}

func (o *OpenAI) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	o.logger.Debug("generating embeddings", "count", len(texts))
	vectors, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		o.logger.Error("failed to generate embeddings", "count", len(texts), "error", err)
		return nil, err
	}
	return vectors, nil
}

func (o *OpenAI) Dimension() int { return o.dimension }

func (o *OpenAI) Name() string { return "openai:" + o.model }
