// Package embed turns text into fixed-dimension vectors through a Genkit
// ai.Embedder, enforcing the dimension the vector index was built for.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"
)

var (
	// ErrEmpty indicates the provider returned no embedding for an input.
	ErrEmpty = errors.New("empty embedding returned")

	// ErrDimension indicates the provider returned a vector whose length does
	// not match the configured dimension. Storing it would corrupt the index,
	// so the whole operation fails instead.
	ErrDimension = errors.New("embedding dimension mismatch")
)

// Client embeds text with a fixed output dimension. Safe for concurrent use.
type Client struct {
	embedder  ai.Embedder
	model     string
	dimension int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New wraps an ai.Embedder. dimension must match the vector column the
// embeddings are stored in. ratePerSecond <= 0 disables client-side rate
// limiting.
func New(embedder ai.Embedder, model string, dimension int, ratePerSecond float64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &Client{
		embedder:  embedder,
		model:     model,
		dimension: dimension,
		limiter:   limiter,
		logger:    logger,
	}
}

// NewGoogleAI creates a Client backed by the Gemini embedding API.
// Credentials come from the GEMINI_API_KEY / GOOGLE_API_KEY environment.
func NewGoogleAI(ctx context.Context, model string, dimension int, ratePerSecond float64, logger *slog.Logger) *Client {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	return New(googlegenai.GoogleAIEmbedder(g, model), model, dimension, ratePerSecond, logger)
}

// Dimension returns the vector length every Embed call yields.
func (c *Client) Dimension() int { return c.dimension }

// Embed converts one text into a vector of exactly Dimension() floats.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding with %s: %w", c.model, err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, ErrEmpty
	}

	vec := resp.Embeddings[0].Embedding
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), c.dimension)
	}
	return vec, nil
}
