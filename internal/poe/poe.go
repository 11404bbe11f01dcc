// Package poe computes the Proof-of-Emergence score for a newly committed
// grain and, above threshold, credits its author on the NGT ledger (§4.5).
// The scorer only ever reads the local index and store; it never blocks on
// the network, matching the "local well-definedness only" note in §9.
package poe

import (
	"context"
	"fmt"
	"math"

	"github.com/synapsenet/node/internal/index"
	"github.com/synapsenet/node/internal/model"
)

// Options configures the scorer's weights and anti-spam thresholds,
// mirroring the teacher's rag.Options/DefaultOptions idiom of a
// constructor-time tunable bundle with sane defaults.
type Options struct {
	Alpha       float64 // novelty weight
	Beta        float64 // coherence weight
	Gamma       float64 // reuse weight
	TauNovelty  float64 // minimum novelty for credit
	TauCoherence float64 // minimum coherence for credit
	NeighborK   int      // number of nearest neighbors sampled for N/C
}

// DefaultOptions mirror the defaults named in §4.5.
func DefaultOptions() Options {
	return Options{
		Alpha:        0.5,
		Beta:         0.3,
		Gamma:        0.2,
		TauNovelty:   0.1,
		TauCoherence: 0.1,
		NeighborK:    8,
	}
}

// Store is the subset of the store the scorer needs: reading the links
// that target a grain (to derive reuse count) and writing the resulting
// credit row.
type Store interface {
	LinksTo(id [32]byte) ([]model.Link, error)
	PutCredit(c model.Credit) error
}

// Scorer computes novelty, coherence, and reuse for a grain against the
// node's local index, and credits the author when both novelty and
// coherence clear their thresholds.
type Scorer struct {
	idx   *index.Index
	store Store
	opts  Options
}

// New creates a Scorer over idx and store with opts.
func New(idx *index.Index, store Store, opts Options) *Scorer {
	return &Scorer{idx: idx, store: store, opts: opts}
}

// Components is the intermediate novelty/coherence/reuse/score breakdown,
// returned alongside the credit decision so callers (and tests) can assert
// on it directly instead of re-deriving it from side effects.
type Components struct {
	Novelty   float64
	Coherence float64
	Reuse     int64
	Score     float64
	Credited  bool
}

// Score computes N, C, R, and S for grain g — g must already be inserted
// into idx, since the neighbor sample includes g's own nearest neighbors
// excluding itself (§4.5: "the same neighbors" used for both N and C).
func (s *Scorer) Score(ctx context.Context, g model.Grain) (Components, error) {
	results, err := s.idx.Search(g.Vec, s.opts.NeighborK+1)
	if err != nil {
		return Components{}, fmt.Errorf("poe: search: %w", err)
	}

	var sims []float32
	for _, r := range results {
		if r.ID == g.ID {
			continue
		}
		sims = append(sims, r.Sim)
		if len(sims) == s.opts.NeighborK {
			break
		}
	}

	var novelty, coherence float64
	if len(sims) == 0 {
		novelty, coherence = 1, 0
	} else {
		var maxSim float32
		var sumSim float64
		for _, sim := range sims {
			if sim > maxSim {
				maxSim = sim
			}
			sumSim += float64(sim)
		}
		novelty = 1 - float64(maxSim)
		coherence = sumSim / float64(len(sims))
	}

	links, err := s.store.LinksTo(g.ID)
	if err != nil {
		return Components{}, fmt.Errorf("poe: reuse count: %w", err)
	}
	reuse := int64(len(links))

	score := s.opts.Alpha*novelty + s.opts.Beta*coherence + s.opts.Gamma*math.Log(1+float64(reuse))

	return Components{
		Novelty:   novelty,
		Coherence: coherence,
		Reuse:     reuse,
		Score:     score,
		Credited:  novelty >= s.opts.TauNovelty && coherence >= s.opts.TauCoherence,
	}, nil
}

// NGTAward is the fixed-point NGT amount minted for a credited grain: the
// score scaled into the ledger's 6-decimal fixed point, floored at one unit
// so a credited grain always awards something.
func NGTAward(score float64) int64 {
	n := int64(score * float64(model.NGTScale))
	if n < 1 {
		n = 1
	}
	return n
}

// Apply scores g and, if it clears both thresholds, appends a credit row
// to the author's balance. It returns the computed Components regardless
// of whether credit was awarded, so callers can log/observe the decision.
func (s *Scorer) Apply(ctx context.Context, g model.Grain) (Components, error) {
	c, err := s.Score(ctx, g)
	if err != nil {
		return Components{}, err
	}
	if !c.Credited {
		return c, nil
	}
	credit := model.Credit{
		GrainID:   g.ID,
		AwardedTo: g.Meta.AuthorPK,
		NGT:       NGTAward(c.Score),
		Reason:    "poe_score",
		CreatedMs: g.Meta.CreatedMs,
	}
	if err := s.store.PutCredit(credit); err != nil {
		return Components{}, fmt.Errorf("poe: put credit: %w", err)
	}
	return c, nil
}
