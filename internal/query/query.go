// Package query implements the query coordinator (§4.7): embed the query
// text, search the local index, optionally fan out a distributed KNN
// query over the swarm, and merge both result sets by max-similarity per
// grain id.
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/synapsenet/node/internal/embed"
	"github.com/synapsenet/node/internal/index"
)

// SourceLocal marks a result that came from this node's own index.
const SourceLocal = "local"

// Result is one ranked hit returned to the caller, annotated with where it
// came from — "local" or the responding peer's id (§4.7).
type Result struct {
	GrainID [32]byte
	CosSim  float32
	Source  string
}

// Index is the subset of internal/index.Index the coordinator needs.
type Index interface {
	Search(vec []float32, k int) ([]index.Result, error)
}

// Swarm is the subset of internal/swarm.Swarm the coordinator needs for
// distributed fan-out. Kept as a narrow interface so query never depends
// on swarm's pubsub/libp2p internals directly.
type Swarm interface {
	QueryKnn(ctx context.Context, vec []float32, k int) ([]PeerResult, error)
}

// PeerResult is the shape a Swarm implementation returns per peer hit;
// internal/swarm's distributed KNN response satisfies this directly.
type PeerResult struct {
	GrainID [32]byte
	CosSim  float32
	Source  string
}

// Coordinator answers query(text, k) requests.
type Coordinator struct {
	producer      embed.Producer
	idx           Index
	swarm         Swarm // nil when p2p is disabled
	networkAlways bool
}

// New creates a Coordinator. swarm may be nil if p2p is disabled (§4.7:
// fan-out only happens "if len(local) < k or network is enabled").
func New(producer embed.Producer, idx Index, swarm Swarm, networkAlways bool) *Coordinator {
	return &Coordinator{producer: producer, idx: idx, swarm: swarm, networkAlways: networkAlways}
}

// Query embeds text, searches locally, optionally fans out to peers, and
// returns the merged top-k results sorted by descending similarity.
func (c *Coordinator) Query(ctx context.Context, text string, k int) ([]Result, error) {
	vec, err := c.producer.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query: embed: %w", err)
	}

	localHits, err := c.idx.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("query: local search: %w", err)
	}

	merged := make(map[[32]byte]Result, len(localHits))
	for _, h := range localHits {
		merged[h.ID] = Result{GrainID: h.ID, CosSim: h.Sim, Source: SourceLocal}
	}

	if c.swarm != nil && (len(localHits) < k || c.networkAlways) {
		peerHits, err := c.swarm.QueryKnn(ctx, vec, k)
		if err == nil {
			for _, h := range peerHits {
				existing, ok := merged[h.GrainID]
				if !ok || h.CosSim > existing.CosSim {
					merged[h.GrainID] = Result{GrainID: h.GrainID, CosSim: h.CosSim, Source: h.Source}
				}
			}
		}
	}

	out := make([]Result, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CosSim > out[j].CosSim })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
