package embed

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/codeprov/codeprov-go/internal/config"
)

// OpenAIEmbedder generates embeddings through the OpenAI-compatible API.
// Calls are rate limited; the embedding endpoint is the dominant suspension
// point of the whole pipeline.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewOpenAIEmbedder builds an embedder from configuration. A custom BaseURL
// allows pointing at any OpenAI-compatible embedding service.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding api key missing")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     openai.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimension,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:    slog.Default().With("component", "embedder"),
	}, nil
}

// Dimension returns the configured vector size.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed returns the vector for one text. The request pins Dimensions so the
// stored vectors stay comparable regardless of the model's native size.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      e.model,
		Dimensions: e.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response carried no data")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: want %d, got %d", e.dimension, len(vec))
	}
	return vec, nil
}
