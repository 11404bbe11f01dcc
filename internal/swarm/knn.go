package swarm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/synapsenet/node/internal/query"
)

// QueryKnn originates a distributed KNN query (§4.6/§4.7): publish on
// query.knn, collect responses until the configured deadline (or ctx
// cancellation, whichever comes first), and return the raw per-peer
// results for the query coordinator to merge with its local search.
// Satisfies internal/query.Swarm.
func (s *Swarm) QueryKnn(ctx context.Context, vec []float32, k int) ([]query.PeerResult, error) {
	queryID := newQueryID()
	pq := s.queries.register(queryID)
	defer s.queries.unregister(queryID)

	msg := queryKnnMsg{QueryID: queryID, Vec: vec, K: k, From: s.ourID}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := s.publish(TopicQueryKnn, data); err != nil {
		return nil, err
	}

	deadline := s.cfg.QueryDeadline
	if deadline <= 0 {
		deadline = 2 * time.Second
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	raw := pq.drain()
	out := make([]query.PeerResult, len(raw))
	for i, r := range raw {
		out[i] = query.PeerResult{GrainID: r.GrainID, CosSim: r.CosSim, Source: r.Source}
	}
	return out, nil
}
