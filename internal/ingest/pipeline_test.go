package ingest

import (
	"context"
	"testing"

	"github.com/synapsenet/node/internal/crypto"
	"github.com/synapsenet/node/internal/embed"
	"github.com/synapsenet/node/internal/index"
	"github.com/synapsenet/node/internal/model"
	"github.com/synapsenet/node/internal/poe"
)

type fakeGrainStore struct {
	grains map[[32]byte]model.Grain
}

func newFakeGrainStore() *fakeGrainStore { return &fakeGrainStore{grains: map[[32]byte]model.Grain{}} }

func (s *fakeGrainStore) PutGrain(g model.Grain) error {
	s.grains[g.ID] = g
	return nil
}

func (s *fakeGrainStore) LinksTo(id [32]byte) ([]model.Link, error) { return nil, nil }
func (s *fakeGrainStore) PutCredit(c model.Credit) error            { return nil }

type fakeBroadcaster struct {
	published []model.Grain
}

func (b *fakeBroadcaster) Publish(_ context.Context, g model.Grain) error {
	b.published = append(b.published, g)
	return nil
}

func TestValidate_EmptyText(t *testing.T) {
	r := Validate(context.Background(), Request{})
	if !r.IsErr() {
		t.Fatal("expected error for empty text")
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	r := Normalize(context.Background(), embeddedReq{Vec: []float32{0, 0, 0, 0}})
	if !r.IsErr() {
		t.Fatal("expected error for zero vector")
	}
}

func TestNormalize_UnitNorm(t *testing.T) {
	r := Normalize(context.Background(), embeddedReq{Vec: []float32{3, 4, 0, 0}})
	out, err := r.Unwrap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sumSq float64
	for _, f := range out.Vec {
		sumSq += float64(f) * float64(f)
	}
	if d := sumSq - 1; d > 1e-6 || d < -1e-6 {
		t.Fatalf("expected unit norm, got sumSq=%v", sumSq)
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	const dim = 4
	pub, sk, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	signer := crypto.NewKeyProvider(pub, sk)

	producer := embed.NewFake(dim)
	producer.Set("alpha", []float32{1, 0, 0, 0})

	idx := index.New(dim, index.DefaultOptions)
	store := newFakeGrainStore()
	scorer := poe.New(idx, store, poe.DefaultOptions())
	broadcaster := &fakeBroadcaster{}

	pipeline := NewPipeline(Deps{
		Dim:         dim,
		Producer:    producer,
		Signer:      signer,
		Store:       store,
		Index:       idx,
		Scorer:      scorer,
		Broadcaster: broadcaster,
	})

	result := pipeline(context.Background(), Request{Text: "alpha"})
	g, err := result.Unwrap()
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if _, ok := store.grains[g.ID]; !ok {
		t.Fatal("expected grain committed to store")
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 grain indexed, got %d", idx.Len())
	}
	if len(broadcaster.published) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(broadcaster.published))
	}
	if !crypto.VerifyGrainID(g.Meta.AuthorPK, g.ID, g.Sig) {
		t.Fatal("expected valid signature on committed grain")
	}
}

func TestPipeline_RejectsEmptyText(t *testing.T) {
	const dim = 4
	pub, sk, _ := crypto.GenerateKeyPair()
	signer := crypto.NewKeyProvider(pub, sk)
	producer := embed.NewFake(dim)
	idx := index.New(dim, index.DefaultOptions)
	store := newFakeGrainStore()
	scorer := poe.New(idx, store, poe.DefaultOptions())
	broadcaster := &fakeBroadcaster{}

	pipeline := NewPipeline(Deps{
		Dim: dim, Producer: producer, Signer: signer, Store: store,
		Index: idx, Scorer: scorer, Broadcaster: broadcaster,
	})

	result := pipeline(context.Background(), Request{Text: ""})
	if !result.IsErr() {
		t.Fatal("expected error for empty text request")
	}
	if len(broadcaster.published) != 0 {
		t.Fatal("expected no broadcast for rejected request")
	}
}
