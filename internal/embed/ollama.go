package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/synapsenet/node/internal/model"
	"github.com/synapsenet/node/pkg/resilience"
)

// EmbeddingTimeout is the advisory deadline on a single embed call (§5):
// past this the producer is treated as failed even if it may still answer.
const EmbeddingTimeout = 10 * time.Second

// OllamaProducer is the default shipped Producer implementation, talking to
// an Ollama HTTP endpoint. Adapted from the teacher's pkg/ollama.EmbedClient,
// wrapped in a circuit breaker the way the teacher wraps flaky external
// calls in pkg/resilience.
type OllamaProducer struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
	breaker *resilience.Breaker
}

// NewOllamaProducer creates an Ollama-backed embedding producer.
func NewOllamaProducer(baseURL, model string, dim int) *OllamaProducer {
	return &OllamaProducer{
		baseURL: baseURL,
		model:   model,
		dim:     dim,
		client:  &http.Client{Timeout: EmbeddingTimeout},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

func (o *OllamaProducer) Dim() int { return o.dim }

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (o *OllamaProducer) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, model.New(model.KindInvalidInput, "text", model.ErrEmptyText)
	}
	var out []float32
	err := o.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := o.embed(ctx, text)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, model.New(model.KindEmbedding, "embed", err)
	}
	if len(out) != o.dim {
		return nil, model.New(model.KindEmbedding, "embed", model.ErrDimensionMismatch)
	}
	for _, f := range out {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, model.New(model.KindEmbedding, "embed", model.ErrNonFiniteVector)
		}
	}
	return out, nil
}

func (o *OllamaProducer) embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(ollamaEmbedReq{Model: o.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var result ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

func (o *OllamaProducer) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := o.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
