package index

import (
	"context"
	"log/slog"
)

// MirroredIndex wraps the authoritative in-memory Index with an optional
// QdrantMirror (§4.3b): every insert lands in the HNSW graph first (the
// node's own query path never depends on the mirror succeeding), then is
// pushed to Qdrant best-effort for off-node analytics.
type MirroredIndex struct {
	idx    *Index
	mirror *QdrantMirror
	log    *slog.Logger
}

// NewMirroredIndex wraps idx. mirror may be nil when vector_mirror.qdrant_addr is
// not configured.
func NewMirroredIndex(idx *Index, mirror *QdrantMirror, log *slog.Logger) *MirroredIndex {
	return &MirroredIndex{idx: idx, mirror: mirror, log: log}
}

func (m *MirroredIndex) Dim() int { return m.idx.Dim() }
func (m *MirroredIndex) Len() int { return m.idx.Len() }

func (m *MirroredIndex) Insert(id [32]byte, vec []float32) error {
	if err := m.idx.Insert(id, vec); err != nil {
		return err
	}
	if m.mirror != nil {
		var authorPK [32]byte
		if err := m.mirror.Upsert(context.Background(), id, vec, authorPK, 0); err != nil {
			m.log.Warn("index: qdrant mirror upsert failed", "error", err)
		}
	}
	return nil
}

func (m *MirroredIndex) Search(vec []float32, k int) ([]Result, error) {
	return m.idx.Search(vec, k)
}
