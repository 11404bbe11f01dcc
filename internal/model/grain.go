package model

import "time"

// Meta is the descriptive envelope signed alongside a grain's embedding.
type Meta struct {
	AuthorPK  [32]byte  `json:"author_pk"`
	CreatedMs int64     `json:"created_ms"`
	Tags      []string  `json:"tags"`
	MIME      string    `json:"mime"`
	Lang      string    `json:"lang"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary,omitempty"`
}

// Grain is an immutable signed unit of knowledge: a unit-norm embedding
// plus metadata, identified by the content hash of its canonical encoding.
//
// Invariants (I1-I4 in spec.md §3):
//   - ID equals H(canonical(Vec, Meta, AuthorPK))
//   - Verify(Meta.AuthorPK, ID, Sig) holds
//   - len(Vec) equals the node-wide configured embedding dimension
//   - the L2 norm of Vec is 1 within a small epsilon
type Grain struct {
	ID   [32]byte  `json:"id"`
	Vec  []float32 `json:"vec"`
	Meta Meta      `json:"meta"`
	Sig  [64]byte  `json:"sig"`
}

// Link is a signed directed edge between two grains.
type Link struct {
	ID        [32]byte `json:"id"`
	FromID    [32]byte `json:"from_id"`
	ToID      [32]byte `json:"to_id"`
	Weight    float64  `json:"weight"`
	Rationale string   `json:"rationale,omitempty"`
	AuthorPK  [32]byte `json:"author_pk"`
	CreatedMs int64    `json:"created_ms"`
	Sig       [64]byte `json:"sig"`
}

// Credit is an append-only ledger row awarding NGT to a public key.
type Credit struct {
	GrainID    [32]byte `json:"grain_id"`
	AwardedTo  [32]byte `json:"awarded_to"`
	NGT        int64    `json:"ngt_fixed6"` // fixed-point, 6 decimal places
	Reason     string   `json:"reason"`
	CreatedMs  int64    `json:"created_ms"`
}

// PeerRecord is the store's persisted mirror of a swarm peer's identity and
// reputation. Mutated only by the swarm component.
type PeerRecord struct {
	PeerID        string    `json:"peer_id"`
	Addrs         []string  `json:"addrs"`
	ConnectedAtMs int64     `json:"connected_at_ms"`
	GrainsRecv    int64     `json:"grains_recv"`
	GrainsSent    int64     `json:"grains_sent"`
	Reputation    int32     `json:"reputation"`
	LastSeenMs    int64     `json:"last_seen_ms"`
	DeniedUntilMs int64     `json:"denied_until_ms,omitempty"`
}

// QueryEnvelope is the short-lived record a coordinator tracks while a
// distributed KNN query's deadline has not elapsed.
type QueryEnvelope struct {
	QueryID       string    `json:"query_id"`
	OriginatorID  string    `json:"originator_id"`
	Vec           []float32 `json:"vec"`
	K             int       `json:"k"`
	IssuedAt      time.Time `json:"issued_at"`
}

// NGTScale is the fixed-point scale factor for Credit.NGT (6 decimals).
const NGTScale = 1_000_000
