package swarm

import "sync"

// pendingQuery collects resultMsg values for one in-flight distributed
// KNN query until the originator's deadline fires.
type pendingQuery struct {
	mu      sync.Mutex
	results []resultMsg
}

func (p *pendingQuery) add(results []resultMsg) {
	p.mu.Lock()
	p.results = append(p.results, results...)
	p.mu.Unlock()
}

func (p *pendingQuery) drain() []resultMsg {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results
}

// queryRegistry tracks pendingQuery instances by query id for the
// originator side of distributed KNN (§4.6).
type queryRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingQuery
}

func newQueryRegistry() *queryRegistry {
	return &queryRegistry{pending: make(map[string]*pendingQuery)}
}

func (r *queryRegistry) register(queryID string) *pendingQuery {
	pq := &pendingQuery{}
	r.mu.Lock()
	r.pending[queryID] = pq
	r.mu.Unlock()
	return pq
}

func (r *queryRegistry) deliver(queryID string, results []resultMsg) {
	r.mu.Lock()
	pq := r.pending[queryID]
	r.mu.Unlock()
	if pq != nil {
		pq.add(results)
	}
}

func (r *queryRegistry) unregister(queryID string) {
	r.mu.Lock()
	delete(r.pending, queryID)
	r.mu.Unlock()
}
