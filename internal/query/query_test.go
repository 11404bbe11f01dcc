package query

import (
	"context"
	"errors"
	"testing"

	"github.com/synapsenet/node/internal/embed"
	"github.com/synapsenet/node/internal/index"
)

type fakeSwarm struct {
	results []PeerResult
	err     error
	calls   int
}

func (f *fakeSwarm) QueryKnn(_ context.Context, _ []float32, _ int) ([]PeerResult, error) {
	f.calls++
	return f.results, f.err
}

func id(b byte) [32]byte {
	var out [32]byte
	out[0] = b
	return out
}

func TestQuery_LocalOnly(t *testing.T) {
	idx := index.New(4, index.DefaultOptions)
	idx.Insert(id(1), []float32{1, 0, 0, 0})

	producer := embed.NewFake(4)
	producer.Set("alpha", []float32{1, 0, 0, 0})

	coord := New(producer, idx, nil, false)
	results, err := coord.Query(context.Background(), "alpha", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].GrainID != id(1) || results[0].Source != SourceLocal {
		t.Fatalf("expected a single local hit, got %+v", results)
	}
}

func TestQuery_MergesPeerResultsWhenLocalInsufficient(t *testing.T) {
	idx := index.New(4, index.DefaultOptions)
	idx.Insert(id(1), []float32{0, 1, 0, 0})

	producer := embed.NewFake(4)
	producer.Set("alpha", []float32{1, 0, 0, 0})

	swarm := &fakeSwarm{results: []PeerResult{{GrainID: id(2), CosSim: 0.9, Source: "peerB"}}}
	coord := New(producer, idx, swarm, false)

	results, err := coord.Query(context.Background(), "alpha", 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if swarm.calls != 1 {
		t.Fatalf("expected fan-out when local hits (1) < k (2), got %d calls", swarm.calls)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 merged results, got %d", len(results))
	}
	if results[0].GrainID != id(2) || results[0].Source != "peerB" {
		t.Fatalf("expected peer result to rank first by similarity, got %+v", results[0])
	}
}

func TestQuery_DeduplicatesByMaxSimilarity(t *testing.T) {
	idx := index.New(4, index.DefaultOptions)
	idx.Insert(id(1), []float32{1, 0, 0, 0})

	producer := embed.NewFake(4)
	producer.Set("alpha", []float32{1, 0, 0, 0})

	// Same grain id reported by a peer with a lower similarity than the
	// local hit must not overwrite the higher local value (§4.7 merge rule).
	swarm := &fakeSwarm{results: []PeerResult{{GrainID: id(1), CosSim: 0.2, Source: "peerB"}}}
	coord := New(producer, idx, swarm, true)

	results, err := coord.Query(context.Background(), "alpha", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected grain id deduplicated to a single row, got %d", len(results))
	}
	if results[0].Source != SourceLocal {
		t.Fatalf("expected the higher-similarity local result to win the merge, got source=%s sim=%v", results[0].Source, results[0].CosSim)
	}
}

func TestQuery_ResultsSortedDescendingAndCappedAtK(t *testing.T) {
	idx := index.New(4, index.DefaultOptions)
	idx.Insert(id(1), []float32{1, 0, 0, 0})
	idx.Insert(id(2), []float32{0.8, 0.2, 0, 0})
	idx.Insert(id(3), []float32{0, 0, 0, 1})

	producer := embed.NewFake(4)
	producer.Set("alpha", []float32{1, 0, 0, 0})

	coord := New(producer, idx, nil, false)
	results, err := coord.Query(context.Background(), "alpha", 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected results capped at k=2, got %d", len(results))
	}
	if results[0].CosSim < results[1].CosSim {
		t.Fatalf("expected descending similarity order, got %+v", results)
	}
}

func TestQuery_PeerErrorFallsBackToLocal(t *testing.T) {
	idx := index.New(4, index.DefaultOptions)
	idx.Insert(id(1), []float32{1, 0, 0, 0})

	producer := embed.NewFake(4)
	producer.Set("alpha", []float32{1, 0, 0, 0})

	swarm := &fakeSwarm{err: errors.New("deadline exceeded")}
	coord := New(producer, idx, swarm, true)

	results, err := coord.Query(context.Background(), "alpha", 1)
	if err != nil {
		t.Fatalf("expected deadline/peer errors to be swallowed, got %v", err)
	}
	if len(results) != 1 || results[0].Source != SourceLocal {
		t.Fatalf("expected local-only results on peer error, got %+v", results)
	}
}
