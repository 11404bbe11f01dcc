// Package ingest implements the add_grain pipeline (§4.4): validate the
// request, obtain an embedding, normalize it to unit norm, sign the grain,
// commit it to store and index, score it for PoE credit, and hand it to
// the broadcaster. Stages compose with pkg/fn.Stage/Then exactly as the
// teacher's engine/ingest.NewPipeline composes Validate/Parse/Chunk/Embed/Store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/synapsenet/node/internal/crypto"
	"github.com/synapsenet/node/internal/embed"
	"github.com/synapsenet/node/internal/model"
	"github.com/synapsenet/node/internal/poe"
	"github.com/synapsenet/node/pkg/fn"
)

// GrainStore is the subset of the store the commit stage needs.
type GrainStore interface {
	PutGrain(g model.Grain) error
}

// VectorIndex is the subset of the index the commit stage needs.
type VectorIndex interface {
	Insert(id [32]byte, vec []float32) error
}

// Scorer computes and applies PoE credit for a freshly committed grain.
type Scorer interface {
	Apply(ctx context.Context, g model.Grain) (poe.Components, error)
}

// Broadcaster hands a committed, scored grain off to the swarm for gossip.
// Kept as a narrow local interface — not internal/bus.Bus — so ingestion
// never depends on the bus's transport details (§9's message-passing
// decoupling note).
type Broadcaster interface {
	Publish(ctx context.Context, g model.Grain) error
}

// Deps holds the external collaborators the pipeline is wired against,
// mirroring the teacher's ingest.Deps bundle.
type Deps struct {
	Dim         int
	Producer    embed.Producer
	Signer      crypto.KeyProvider
	Store       GrainStore
	Index       VectorIndex
	Scorer      Scorer
	Broadcaster Broadcaster
	Logger      *slog.Logger
}

// Validate checks the request invariants the embedding stage can't.
var Validate fn.Stage[Request, Request] = func(_ context.Context, r Request) fn.Result[Request] {
	if r.Text == "" {
		return fn.Err[Request](model.New(model.KindInvalidInput, "text", model.ErrEmptyText))
	}
	return fn.Ok(r)
}

// NewEmbed creates the stage that obtains an embedding from producer.
func NewEmbed(producer embed.Producer) fn.Stage[Request, embeddedReq] {
	return func(ctx context.Context, r Request) fn.Result[embeddedReq] {
		vec, err := producer.Embed(ctx, r.Text)
		if err != nil {
			return fn.Err[embeddedReq](err)
		}
		return fn.Ok(embeddedReq{Request: r, Vec: vec})
	}
}

// Normalize rescales the embedding to unit L2 norm, the invariant (I4) a
// grain's vector must carry regardless of what the producer returned.
var Normalize fn.Stage[embeddedReq, embeddedReq] = func(_ context.Context, e embeddedReq) fn.Result[embeddedReq] {
	var sumSq float64
	for _, f := range e.Vec {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return fn.Err[embeddedReq](model.New(model.KindInvalidInput, "vec", model.ErrZeroVector))
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(e.Vec))
	for i, f := range e.Vec {
		out[i] = float32(float64(f) / norm)
	}
	e.Vec = out
	return fn.Ok(e)
}

// NewSign builds and signs the Grain: computes its content hash, signs it
// with signer, and validates the resulting record against the node's
// invariants before letting it proceed.
func NewSign(signer crypto.KeyProvider, dim int) fn.Stage[embeddedReq, model.Grain] {
	return func(_ context.Context, e embeddedReq) fn.Result[model.Grain] {
		createdMs := e.CreatedMs
		if createdMs == 0 {
			createdMs = time.Now().UnixMilli()
		}
		meta := model.Meta{
			AuthorPK:  signer.PublicKey(),
			CreatedMs: createdMs,
			Tags:      e.Tags,
			MIME:      e.MIME,
			Lang:      e.Lang,
			Title:     e.Title,
			Summary:   e.Summary,
		}
		id := crypto.Hash(model.HashInput(e.Vec, meta, meta.AuthorPK))
		sig, err := signer.Sign(id[:])
		if err != nil {
			return fn.Err[model.Grain](model.New(model.KindSignature, "sig", err))
		}
		g := model.Grain{ID: id, Vec: e.Vec, Meta: meta, Sig: sig}
		if err := crypto.Validate(g, dim); err != nil {
			return fn.Err[model.Grain](model.New(model.KindSignature, "grain", err))
		}
		return fn.Ok(g)
	}
}

// NewCommit writes the grain to store and index, in that order — commit
// strictly happens-before index insert (§4.4 ordering guarantee).
func NewCommit(store GrainStore, idx VectorIndex) fn.Stage[model.Grain, model.Grain] {
	return func(_ context.Context, g model.Grain) fn.Result[model.Grain] {
		if err := store.PutGrain(g); err != nil {
			return fn.Err[model.Grain](model.New(model.KindStorage, "grain", err))
		}
		if err := idx.Insert(g.ID, g.Vec); err != nil {
			return fn.Err[model.Grain](model.New(model.KindStorage, "index", err))
		}
		return fn.Ok(g)
	}
}

// NewScore runs PoE scoring and credit issuance. Scoring failures are
// logged, not fatal: the grain is already durably committed, so a scorer
// error must not unwind the pipeline (§4.4: "the grain is still stored").
func NewScore(scorer Scorer, log *slog.Logger) fn.Stage[model.Grain, model.Grain] {
	return func(ctx context.Context, g model.Grain) fn.Result[model.Grain] {
		c, err := scorer.Apply(ctx, g)
		if err != nil {
			log.Warn("ingest: poe scoring failed", "error", err, "grain_id", fmt.Sprintf("%x", g.ID))
			return fn.Ok(g)
		}
		log.Info("ingest: poe scored", "novelty", c.Novelty, "coherence", c.Coherence, "reuse", c.Reuse, "credited", c.Credited)
		return fn.Ok(g)
	}
}

// NewEnqueue hands the grain to the broadcaster for gossip.
func NewEnqueue(b Broadcaster) fn.Stage[model.Grain, model.Grain] {
	return func(ctx context.Context, g model.Grain) fn.Result[model.Grain] {
		if err := b.Publish(ctx, g); err != nil {
			return fn.Err[model.Grain](model.New(model.KindNetwork, "broadcast", err))
		}
		return fn.Ok(g)
	}
}

// LoggedTap logs stage entry/exit with duration, matching the teacher's
// ingest.LoggedTap.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(_ context.Context, t T) fn.Result[T] {
		log.Debug("ingest.stage", "stage", name)
		return fn.Ok(t)
	}
}

// NewPipeline composes the full add_grain pipeline: Validate → Embed →
// Normalize → Sign → Commit → Score → Enqueue.
func NewPipeline(deps Deps) fn.Stage[Request, model.Grain] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := fn.Then(LoggedTap[Request]("validate", log), Validate)
	embedded := fn.Then(validated, fn.Then(LoggedTap[Request]("embed", log), NewEmbed(deps.Producer)))
	normalized := fn.Then(embedded, fn.Then(LoggedTap[embeddedReq]("normalize", log), Normalize))
	signed := fn.Then(normalized, fn.Then(LoggedTap[embeddedReq]("sign", log), NewSign(deps.Signer, deps.Dim)))
	committed := fn.Then(signed, fn.Then(LoggedTap[model.Grain]("commit", log), NewCommit(deps.Store, deps.Index)))
	scored := fn.Then(committed, fn.Then(LoggedTap[model.Grain]("score", log), NewScore(deps.Scorer, log)))
	enqueued := fn.Then(scored, fn.Then(LoggedTap[model.Grain]("enqueue", log), NewEnqueue(deps.Broadcaster)))

	return enqueued
}
