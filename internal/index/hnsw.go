// Package index implements the node's in-memory approximate nearest
// neighbor index: a hierarchical navigable small-world (HNSW) graph over
// unit-norm embeddings, searched by cosine similarity.
//
// No HNSW package appears anywhere in the retrieved example pack (pgvector's
// HNSW clause in other_examples' nevindra-oasis store is a Postgres index
// directive, not an in-process graph) so this is a from-scratch
// implementation, parameterized the way that file names its knobs
// (ef_construction / ef_search).
package index

import (
	"bytes"
	"container/heap"
	"errors"
	"math"
	"math/rand"
	"sync"
)

// ErrDimensionMismatch is returned when an inserted vector's length does
// not match the index's configured dimension.
var ErrDimensionMismatch = errors.New("index: dimension mismatch")

// Result is one hit from Search: a grain id paired with its cosine
// similarity to the query vector.
type Result struct {
	ID  [32]byte
	Sim float32
}

// Options configures the graph's build/search parameters.
type Options struct {
	M              int // max bidirectional links per node per layer (layer 0 included)
	EfConstruction int
	EfSearch       int
}

// DefaultOptions mirror common HNSW defaults.
var DefaultOptions = Options{M: 16, EfConstruction: 200, EfSearch: 64}

type node struct {
	id        [32]byte
	vec       []float32
	level     int
	neighbors [][][32]byte // neighbors[level] = list of neighbor ids
}

// Index is a single-writer, multi-reader HNSW graph. Readers take a
// read-lock that excludes insertion for the duration of a search (§5:
// HNSW searches are short).
type Index struct {
	mu       sync.RWMutex
	dim      int
	opts     Options
	nodes    map[[32]byte]*node
	order    [][32]byte // insertion order, for startup rebuild determinism
	entry    [32]byte
	hasEntry bool
	maxLevel int
	mL       float64
	rng      *rand.Rand
}

// New creates an empty Index for the given embedding dimension.
func New(dim int, opts Options) *Index {
	if opts.M <= 0 {
		opts = DefaultOptions
	}
	return &Index{
		dim:   dim,
		opts:  opts,
		nodes: make(map[[32]byte]*node),
		mL:    1.0 / math.Log(float64(opts.M)),
		rng:   rand.New(rand.NewSource(1)),
	}
}

// Dim returns the configured embedding dimension.
func (idx *Index) Dim() int { return idx.dim }

// Len returns the number of vectors currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// Insert adds a vector under id. Re-inserting an id that already exists is
// a no-op, keeping index rebuild from the store idempotent.
func (idx *Index) Insert(id [32]byte, vec []float32) error {
	if len(vec) != idx.dim {
		return ErrDimensionMismatch
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.nodes[id]; ok {
		return nil
	}

	n := &node{id: id, vec: normalizedCopy(vec), level: idx.randomLevel()}
	n.neighbors = make([][][32]byte, n.level+1)

	if !idx.hasEntry {
		idx.nodes[id] = n
		idx.order = append(idx.order, id)
		idx.entry = id
		idx.hasEntry = true
		idx.maxLevel = n.level
		return nil
	}

	entry := idx.entry
	curDist := idx.cosine(idx.nodes[entry].vec, n.vec)
	for lvl := idx.maxLevel; lvl > n.level; lvl-- {
		entry, curDist = idx.greedyDescend(entry, curDist, n.vec, lvl)
	}

	// n must be resolvable by id before connect may trim a neighbor's
	// list, which looks up every listed id, the new one included.
	idx.nodes[id] = n
	for lvl := min(idx.maxLevel, n.level); lvl >= 0; lvl-- {
		candidates := idx.searchLayer(n.vec, entry, idx.opts.EfConstruction, lvl)
		selected := selectNeighbors(candidates, idx.opts.M)
		n.neighbors[lvl] = selected
		for _, nb := range selected {
			idx.connect(nb, id, lvl)
		}
		if len(candidates) > 0 {
			entry = candidates[0].id
		}
	}

	idx.order = append(idx.order, id)
	if n.level > idx.maxLevel {
		idx.maxLevel = n.level
		idx.entry = id
	}
	return nil
}

// Search returns the top-k nearest neighbors to vec by cosine similarity,
// sorted descending. k > Len returns Len results; an empty index returns
// an empty slice; a dimension mismatch returns ErrDimensionMismatch.
func (idx *Index) Search(vec []float32, k int) ([]Result, error) {
	if len(vec) != idx.dim {
		return nil, ErrDimensionMismatch
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.nodes) == 0 {
		return []Result{}, nil
	}
	q := normalizedCopy(vec)

	entry := idx.entry
	curDist := idx.cosine(idx.nodes[entry].vec, q)
	for lvl := idx.maxLevel; lvl > 0; lvl-- {
		entry, curDist = idx.greedyDescend(entry, curDist, q, lvl)
	}
	_ = curDist

	ef := idx.opts.EfSearch
	if ef < k {
		ef = k
	}
	candidates := idx.searchLayer(q, entry, ef, 0)

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Result, k)
	for i := 0; i < k; i++ {
		out[i] = Result{ID: candidates[i].id, Sim: candidates[i].dist}
	}
	return out, nil
}

// greedyDescend walks from `from` toward the single closest neighbor at
// layer lvl until no improvement is found.
func (idx *Index) greedyDescend(from [32]byte, fromDist float32, q []float32, lvl int) ([32]byte, float32) {
	best, bestDist := from, fromDist
	improved := true
	for improved {
		improved = false
		n := idx.nodes[best]
		if lvl >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[lvl] {
			d := idx.cosine(idx.nodes[nb].vec, q)
			if d > bestDist {
				best, bestDist = nb, d
				improved = true
			}
		}
	}
	return best, bestDist
}

type candidate struct {
	id   [32]byte
	dist float32
}

// candHeap is a max-heap by similarity (closest first on pop via Pop-sort).
type candHeap []candidate

func (h candHeap) Len() int            { return len(h) }
func (h candHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h candHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candHeap) Push(x any)         { *h = append(*h, x.(candidate)) }
func (h *candHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer performs a best-first search at layer lvl starting from
// entry, expanding up to ef candidates, and returns them sorted by
// descending similarity.
func (idx *Index) searchLayer(q []float32, entry [32]byte, ef int, lvl int) []candidate {
	visited := map[[32]byte]bool{entry: true}
	entryDist := idx.cosine(idx.nodes[entry].vec, q)

	// result stores negated similarities, so its max-heap root is the
	// worst (least similar) candidate kept so far and Pop evicts it.
	result := &candHeap{{id: entry, dist: -entryDist}}
	heap.Init(result)

	toExplore := &candHeap{{id: entry, dist: entryDist}}
	heap.Init(toExplore)

	for toExplore.Len() > 0 {
		cur := heap.Pop(toExplore).(candidate)
		worst := -(*result)[0].dist
		if len(*result) >= ef && cur.dist < worst {
			break
		}
		n := idx.nodes[cur.id]
		if lvl >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[lvl] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := idx.cosine(idx.nodes[nb].vec, q)
			worst = -(*result)[0].dist
			if len(*result) < ef || d > worst {
				heap.Push(result, candidate{id: nb, dist: -d})
				heap.Push(toExplore, candidate{id: nb, dist: d})
				if result.Len() > ef {
					heap.Pop(result)
				}
			}
		}
	}

	out := make([]candidate, len(*result))
	for i, c := range *result {
		out[i] = candidate{id: c.id, dist: -c.dist}
	}
	sortCandidatesDesc(out)
	return out
}

// sortCandidatesDesc orders by descending similarity, equal similarities
// by ascending id.
func sortCandidatesDesc(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && (c[j].dist > c[j-1].dist ||
			(c[j].dist == c[j-1].dist && bytes.Compare(c[j].id[:], c[j-1].id[:]) < 0)); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// selectNeighbors keeps the M closest candidates (simple heuristic; ties
// broken by the candidate order already produced by searchLayer).
func selectNeighbors(candidates []candidate, m int) [][32]byte {
	if m > len(candidates) {
		m = len(candidates)
	}
	out := make([][32]byte, m)
	for i := 0; i < m; i++ {
		out[i] = candidates[i].id
	}
	return out
}

// connect adds a back-edge from `from` to `to` at lvl, trimming to M
// neighbors if the list grows past the configured max degree.
func (idx *Index) connect(from [32]byte, to [32]byte, lvl int) {
	n := idx.nodes[from]
	if lvl >= len(n.neighbors) {
		return
	}
	n.neighbors[lvl] = append(n.neighbors[lvl], to)
	if len(n.neighbors[lvl]) <= idx.opts.M {
		return
	}
	// Trim: keep the M closest to `from` among current neighbors.
	cands := make([]candidate, 0, len(n.neighbors[lvl]))
	for _, nb := range n.neighbors[lvl] {
		cands = append(cands, candidate{id: nb, dist: idx.cosine(n.vec, idx.nodes[nb].vec)})
	}
	sortCandidatesDesc(cands)
	trimmed := make([][32]byte, idx.opts.M)
	for i := range trimmed {
		trimmed[i] = cands[i].id
	}
	n.neighbors[lvl] = trimmed
}

func (idx *Index) randomLevel() int {
	l := int(math.Floor(-math.Log(idx.rng.Float64()) * idx.mL))
	return l
}

func (idx *Index) cosine(a, b []float32) float32 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot)
}

func normalizedCopy(vec []float32) []float32 {
	var sumSq float64
	for _, f := range vec {
		sumSq += float64(f) * float64(f)
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(vec))
	if norm == 0 {
		copy(out, vec)
		return out
	}
	for i, f := range vec {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

