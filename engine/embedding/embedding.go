// Package embedding wraps the OpenAI embeddings API behind a fixed
// dimensionality contract and an outbound rate limit.
package embedding

import (
	"context"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/StephaneWamba/real-time-rag/engine/domain"
	"github.com/StephaneWamba/real-time-rag/pkg/resilience"
)

// embeddingsAPI is the subset of *openai.Client this package depends on,
// narrowed to allow a fake in tests.
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Client generates embeddings for chunk and query text.
type Client struct {
	api        embeddingsAPI
	model      string
	dimensions int
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
}

// New builds a Client for the given model and output dimensionality.
// ratePerSecond bounds outbound request rate; burst allows short spikes. A
// circuit breaker trips after repeated provider failures so a stalled
// embeddings endpoint doesn't queue every chunk behind a slow timeout.
func New(apiKey, model string, dimensions int, ratePerSecond float64, burst int) *Client {
	return newWithAPI(openai.NewClient(apiKey), model, dimensions, ratePerSecond, burst)
}

func newWithAPI(api embeddingsAPI, model string, dimensions int, ratePerSecond float64, burst int) *Client {
	return &Client{
		api:        api,
		model:      model,
		dimensions: dimensions,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		breaker:    resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// Dimensions returns the configured embedding width.
func (c *Client) Dimensions() int { return c.dimensions }

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in one request, preserving input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.NewEmbeddingError("rate limiter wait", err)
	}

	var resp openai.EmbeddingResponse
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input:      texts,
			Model:      openai.EmbeddingModel(c.model),
			Dimensions: c.dimensions,
		})
		return callErr
	})
	if err != nil {
		return nil, domain.NewEmbeddingError("create embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.NewEmbeddingError("embedding count mismatch", nil)
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Ping probes the configured provider with a models listing call, used by
// engine/health to report a live "openai" dependency status rather than
// inferring liveness from the presence of an API key alone.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.ListModels(ctx)
	return err
}
