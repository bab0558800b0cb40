package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// MockEmbedder implements ai.Embedder with deterministic output: the vector
// for a given text is a pure function of its bytes, so identical inputs get
// identical embeddings across runs and distinct texts land far apart. All
// knobs must be set before first use; CallCount is safe to read concurrently.
type MockEmbedder struct {
	Dim       int           // vector length, required
	Err       error         // returned from every Embed call when non-nil
	Empty     bool          // return a response with no embeddings
	ShortDim  int           // when > 0, emit vectors of this length instead of Dim
	Delay     time.Duration // per-call delay, honors context cancellation
	CallCount atomic.Int64
}

func (m *MockEmbedder) Name() string { return "mock-embedder" }

func (m *MockEmbedder) Register(r api.Registry) {}

func (m *MockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.CallCount.Add(1)

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Empty {
		return &ai.EmbedResponse{}, nil
	}

	dim := m.Dim
	if m.ShortDim > 0 {
		dim = m.ShortDim
	}

	var text string
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		text = req.Input[0].Content[0].Text
	}

	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: Vector(text, dim)}},
	}, nil
}

// Vector projects text onto a deterministic unit vector of the given length.
func Vector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		h := fnv.New64a()
		h.Write([]byte(text))
		h.Write([]byte{byte(i), byte(i >> 8)})
		// Map the hash onto [-1, 1].
		v := float64(int64(h.Sum64())) / math.MaxInt64
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
