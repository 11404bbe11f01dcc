package poe

import (
	"context"
	"testing"

	"github.com/synapsenet/node/internal/index"
	"github.com/synapsenet/node/internal/model"
)

type fakeLinkStore struct {
	links   map[[32]byte][]model.Link
	credits []model.Credit
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{links: map[[32]byte][]model.Link{}}
}

func (s *fakeLinkStore) LinksTo(id [32]byte) ([]model.Link, error) { return s.links[id], nil }

func (s *fakeLinkStore) PutCredit(c model.Credit) error {
	s.credits = append(s.credits, c)
	return nil
}

func grainWithVec(vec []float32) model.Grain {
	var id [32]byte
	id[0] = byte(len(vec))
	for _, f := range vec {
		id[1] += byte(f * 10)
	}
	return model.Grain{ID: id, Vec: vec, Meta: model.Meta{AuthorPK: [32]byte{9}}}
}

func TestScore_EmptyIndexIsMaximallyNovel(t *testing.T) {
	idx := index.New(4, index.DefaultOptions)
	store := newFakeLinkStore()
	s := New(idx, store, DefaultOptions())

	g := grainWithVec([]float32{1, 0, 0, 0})
	idx.Insert(g.ID, g.Vec)

	c, err := s.Score(context.Background(), g)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if c.Novelty != 1 {
		t.Fatalf("expected novelty 1 against an otherwise-empty index, got %v", c.Novelty)
	}
	if c.Coherence != 0 {
		t.Fatalf("expected coherence 0 against an otherwise-empty index, got %v", c.Coherence)
	}
}

func TestApply_NoCreditBelowThreshold(t *testing.T) {
	idx := index.New(4, index.DefaultOptions)
	store := newFakeLinkStore()
	s := New(idx, store, DefaultOptions())

	// Pre-seed a neighbor so the scored grain isn't alone against an empty
	// index, where coherence would be 0 and fail tau_coherence regardless
	// of novelty.
	seed := grainWithVec([]float32{1, 0, 0, 0})
	idx.Insert(seed.ID, seed.Vec)

	first := grainWithVec([]float32{0.7, 0.7, 0, 0})
	idx.Insert(first.ID, first.Vec)
	if _, err := s.Apply(context.Background(), first); err != nil {
		t.Fatalf("apply first: %v", err)
	}
	firstCredits := len(store.credits)
	if firstCredits == 0 {
		t.Fatal("expected a grain clearing both thresholds to be credited")
	}

	// A second grain with the exact same (already-indexed) embedding as
	// `first` has novelty 0 against its nearest neighbor, below
	// tau_novelty — no credit (spec.md §4.5, §8 scenario 4).
	dup := grainWithVec([]float32{0.7, 0.7, 0, 0})
	dup.ID[2] = 1 // distinct id, identical embedding
	idx.Insert(dup.ID, dup.Vec)

	c, err := s.Apply(context.Background(), dup)
	if err != nil {
		t.Fatalf("apply dup: %v", err)
	}
	if c.Credited {
		t.Fatal("expected no credit for a duplicate embedding below tau_novelty")
	}
	if len(store.credits) != firstCredits {
		t.Fatalf("expected credit count unchanged, got %d want %d", len(store.credits), firstCredits)
	}
}

func TestApply_CreditsAuthorNotRelayer(t *testing.T) {
	idx := index.New(4, index.DefaultOptions)
	store := newFakeLinkStore()
	s := New(idx, store, DefaultOptions())

	seed := grainWithVec([]float32{1, 0, 0, 0})
	idx.Insert(seed.ID, seed.Vec)

	g := grainWithVec([]float32{0.7, 0.7, 0, 0})
	g.Meta.AuthorPK = [32]byte{42}
	idx.Insert(g.ID, g.Vec)

	if _, err := s.Apply(context.Background(), g); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(store.credits) != 1 {
		t.Fatalf("expected exactly one credit row, got %d", len(store.credits))
	}
	if store.credits[0].AwardedTo != g.Meta.AuthorPK {
		t.Fatalf("expected credit awarded to the grain's author, got %x", store.credits[0].AwardedTo)
	}
}

func TestNGTAward_AlwaysPositive(t *testing.T) {
	if NGTAward(0) <= 0 {
		t.Fatal("expected NGTAward to floor at a positive amount for a credited grain")
	}
	if NGTAward(-5) <= 0 {
		t.Fatal("expected NGTAward to floor at a positive amount even for a negative score")
	}
}

func TestScore_ReuseIncreasesScore(t *testing.T) {
	idx := index.New(4, index.DefaultOptions)
	store := newFakeLinkStore()
	s := New(idx, store, DefaultOptions())

	g := grainWithVec([]float32{0, 0, 1, 0})
	idx.Insert(g.ID, g.Vec)

	withoutReuse, err := s.Score(context.Background(), g)
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	store.links[g.ID] = []model.Link{{ToID: g.ID}, {ToID: g.ID}, {ToID: g.ID}}
	withReuse, err := s.Score(context.Background(), g)
	if err != nil {
		t.Fatalf("score with reuse: %v", err)
	}

	if withReuse.Reuse != 3 {
		t.Fatalf("expected reuse count 3, got %d", withReuse.Reuse)
	}
	if withReuse.Score <= withoutReuse.Score {
		t.Fatalf("expected reuse to raise the score: %v vs %v", withReuse.Score, withoutReuse.Score)
	}
}
