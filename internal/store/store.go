// Package store provides durable, transactional, idempotent storage for
// grains, links, credits, and peer records, backed by an embedded BoltDB
// file — the bucket-per-entity, db.View/db.Update discipline grounded on
// other_examples' cuemby-warren BoltStore.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/synapsenet/node/internal/model"
)

var (
	bucketGrains  = []byte("grains")
	bucketTSIndex = []byte("grains_by_ts")
	bucketLinks   = []byte("links")
	bucketCredits = []byte("credits")
	bucketPeers   = []byte("peers")
	bucketConfig  = []byte("config")
	bucketMeta    = []byte("meta")
)

var allBuckets = [][]byte{bucketGrains, bucketTSIndex, bucketLinks, bucketCredits, bucketPeers, bucketConfig, bucketMeta}

// schemaVersion is the store's current migration target. Open refuses to
// proceed if the on-disk version is ahead of this or a migration step is
// missing in between ("a gap", per §4.2).
const schemaVersion = 1

// GraphMirror is the optional projection target for committed grains and
// links (§4.2b). The store remains the sole authority for reads — the
// mirror is fire-and-forget enrichment for operators running Cypher
// traversals, never consulted on the hot path.
type GraphMirror interface {
	PutGrain(ctx context.Context, g model.Grain) error
	PutLink(ctx context.Context, l model.Link) error
}

// Store is the sole owner of all persisted node state.
type Store struct {
	db     *bbolt.DB
	mirror GraphMirror
}

// SetGraphMirror wires an optional graph mirror. Safe to call with nil to
// disable mirroring.
func (s *Store) SetGraphMirror(m GraphMirror) {
	s.mirror = m
}

// Open opens (creating if necessary) the BoltDB file at path, runs
// forward-only migrations in version order, and returns a ready Store.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, model.New(model.KindStorage, "open", err)
	}
	s := &Store{db: db}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, model.New(model.KindStorage, "init buckets", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes and closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		raw := meta.Get([]byte("schema_version"))
		current := 0
		if raw != nil {
			current = int(binary.LittleEndian.Uint64(raw))
		}
		if current > schemaVersion {
			return model.New(model.KindStorage, "schema_version", model.ErrMigrationGap)
		}
		for v := current + 1; v <= schemaVersion; v++ {
			if _, ok := migrations[v]; !ok {
				return model.New(model.KindStorage, "schema_version", model.ErrMigrationGap)
			}
			if err := migrations[v](tx); err != nil {
				return err
			}
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(schemaVersion))
		return meta.Put([]byte("schema_version"), buf[:])
	})
}

// --- Grains ---

// PutGrain idempotently inserts a grain keyed by its content hash, also
// maintaining the secondary timestamp index used for bounded scans.
func (s *Store) PutGrain(g model.Grain) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketGrains)
		key := g.ID[:]
		if existing := b.Get(key); existing != nil {
			return nil // idempotent: already present
		}
		data, err := json.Marshal(wireGrain(g))
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		ts := tx.Bucket(bucketTSIndex)
		return ts.Put(tsKey(g.Meta.CreatedMs, g.ID), key)
	})
	if err == nil && s.mirror != nil {
		if mErr := s.mirror.PutGrain(context.Background(), g); mErr != nil {
			slog.Default().Warn("store: graph mirror put_grain failed", "error", mErr)
		}
	}
	return err
}

// GetGrain fetches a grain by content hash.
func (s *Store) GetGrain(id [32]byte) (model.Grain, error) {
	var g model.Grain
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketGrains).Get(id[:])
		if raw == nil {
			return model.ErrUnknownGrain
		}
		var wg wireGrainJSON
		if err := json.Unmarshal(raw, &wg); err != nil {
			return err
		}
		g = wg.toGrain()
		return nil
	})
	return g, err
}

// Contains reports whether a grain with the given id is stored.
func (s *Store) Contains(id [32]byte) bool {
	var found bool
	_ = s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketGrains).Get(id[:]) != nil
		return nil
	})
	return found
}

// IterGrains calls fn for every stored grain in ascending creation-timestamp
// order (the bounded-scan ordering backing index rebuild on startup).
func (s *Store) IterGrains(fn func(model.Grain) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		grains := tx.Bucket(bucketGrains)
		c := tx.Bucket(bucketTSIndex).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			raw := grains.Get(v)
			if raw == nil {
				continue
			}
			var wg wireGrainJSON
			if err := json.Unmarshal(raw, &wg); err != nil {
				return err
			}
			if err := fn(wg.toGrain()); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Links ---

// PutLink idempotently inserts a link. Per spec.md §3, both endpoints must
// exist locally or the link is deferred (returned as an error so the
// ingestion caller can retry later).
func (s *Store) PutLink(l model.Link) error {
	if l.Weight < 0 || l.Weight > 1 {
		return model.ErrWeightOutOfRange
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		grains := tx.Bucket(bucketGrains)
		if grains.Get(l.FromID[:]) == nil || grains.Get(l.ToID[:]) == nil {
			return model.ErrEndpointMissing
		}
		data, err := json.Marshal(l)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLinks).Put(l.ID[:], data)
	})
	if err == nil && s.mirror != nil {
		if mErr := s.mirror.PutLink(context.Background(), l); mErr != nil {
			slog.Default().Warn("store: graph mirror put_link failed", "error", mErr)
		}
	}
	return err
}

// LinksTo returns every link whose ToID matches id — the reuse-count scan
// backing PoE's R(g) term.
func (s *Store) LinksTo(id [32]byte) ([]model.Link, error) {
	var out []model.Link
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketLinks).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var l model.Link
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			if l.ToID == id {
				out = append(out, l)
			}
			_ = k
		}
		return nil
	})
	return out, err
}

// --- Credits ---

// PutCredit appends a credit row. NGT amounts must be strictly positive
// (NGT non-negativity, §8).
func (s *Store) PutCredit(c model.Credit) error {
	if c.NGT <= 0 {
		return model.ErrNegativeCredit
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		key := creditKey(c.GrainID, c.CreatedMs)
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCredits).Put(key, data)
	})
}

// Balance sums every credit awarded to pk.
func (s *Store) Balance(pk [32]byte) (int64, error) {
	var total int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketCredits).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var cr model.Credit
			if err := json.Unmarshal(v, &cr); err != nil {
				return err
			}
			if cr.AwardedTo == pk {
				total += cr.NGT
			}
		}
		return nil
	})
	return total, err
}

// TotalSupply sums every credit ever issued.
func (s *Store) TotalSupply() (int64, error) {
	var total int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketCredits).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var cr model.Credit
			if err := json.Unmarshal(v, &cr); err != nil {
				return err
			}
			total += cr.NGT
			_ = k
		}
		return nil
	})
	return total, err
}

// --- Peers ---

// UpsertPeer inserts or overwrites a peer record by peer id.
func (s *Store) UpsertPeer(p model.PeerRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPeers).Put([]byte(p.PeerID), data)
	})
}

// GetPeer fetches a peer record, or (zero value, false) if unknown.
func (s *Store) GetPeer(peerID string) (model.PeerRecord, bool) {
	var p model.PeerRecord
	found := false
	_ = s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketPeers).Get([]byte(peerID))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		found = true
		return nil
	})
	return p, found
}

// ListPeers returns every known peer record.
func (s *Store) ListPeers() ([]model.PeerRecord, error) {
	var out []model.PeerRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketPeers).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var p model.PeerRecord
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out, err
}

// --- Config (persisted keyed config rows) ---

// PutConfigValue persists a single resolved config key for auditability.
func (s *Store) PutConfigValue(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConfig).Put([]byte(key), []byte(value))
	})
}

func tsKey(ms int64, id [32]byte) []byte {
	key := make([]byte, 8+32)
	binary.BigEndian.PutUint64(key[:8], uint64(ms))
	copy(key[8:], id[:])
	return key
}

func creditKey(grainID [32]byte, ms int64) []byte {
	key := make([]byte, 8+32)
	binary.BigEndian.PutUint64(key[:8], uint64(ms))
	copy(key[8:], grainID[:])
	return key
}

// wireGrainJSON is the JSON-friendly projection of a Grain stored in bbolt
// (bbolt values are opaque bytes; fixed-size arrays round-trip awkwardly
// through encoding/json, so they are base64'd implicitly via []byte).
type wireGrainJSON struct {
	ID   []byte   `json:"id"`
	Vec  []float32 `json:"vec"`
	Meta struct {
		AuthorPK  []byte   `json:"author_pk"`
		CreatedMs int64    `json:"created_ms"`
		Tags      []string `json:"tags"`
		MIME      string   `json:"mime"`
		Lang      string   `json:"lang"`
		Title     string   `json:"title"`
		Summary   string   `json:"summary"`
	} `json:"meta"`
	Sig []byte `json:"sig"`
}

func wireGrain(g model.Grain) wireGrainJSON {
	var w wireGrainJSON
	w.ID = g.ID[:]
	w.Vec = g.Vec
	w.Meta.AuthorPK = g.Meta.AuthorPK[:]
	w.Meta.CreatedMs = g.Meta.CreatedMs
	w.Meta.Tags = g.Meta.Tags
	w.Meta.MIME = g.Meta.MIME
	w.Meta.Lang = g.Meta.Lang
	w.Meta.Title = g.Meta.Title
	w.Meta.Summary = g.Meta.Summary
	w.Sig = g.Sig[:]
	return w
}

func (w wireGrainJSON) toGrain() model.Grain {
	var g model.Grain
	copy(g.ID[:], w.ID)
	g.Vec = w.Vec
	copy(g.Meta.AuthorPK[:], w.Meta.AuthorPK)
	g.Meta.CreatedMs = w.Meta.CreatedMs
	g.Meta.Tags = w.Meta.Tags
	g.Meta.MIME = w.Meta.MIME
	g.Meta.Lang = w.Meta.Lang
	g.Meta.Title = w.Meta.Title
	g.Meta.Summary = w.Meta.Summary
	copy(g.Sig[:], w.Sig)
	return g
}
