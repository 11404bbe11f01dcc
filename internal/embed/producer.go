// Package embed defines the vector-producer capability SynapseNet consumes
// as an external collaborator (§6): it never assumes model identity or
// device, only that text goes in and a finite fixed-length vector comes
// out.
package embed

import "context"

// Producer embeds text into vectors. Implementations must return
// ErrEmbedding for non-finite values or a vector whose length doesn't
// match Dim().
type Producer interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// Fake is an in-memory deterministic Producer for tests: it returns the
// vector registered for a given text, or a zero vector otherwise.
type Fake struct {
	dim     int
	vectors map[string][]float32
}

// NewFake creates a Fake producer of the given dimension.
func NewFake(dim int) *Fake {
	return &Fake{dim: dim, vectors: make(map[string][]float32)}
}

// Set registers the vector Fake returns for text.
func (f *Fake) Set(text string, vec []float32) {
	f.vectors[text] = vec
}

func (f *Fake) Dim() int { return f.dim }

func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out, nil
	}
	return make([]float32, f.dim), nil
}

func (f *Fake) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
