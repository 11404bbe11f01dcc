package swarm

import "testing"

func TestPeerState_ReputationCapAndFloor(t *testing.T) {
	p := newPeerState("peer1", 100)
	p.setState(StateConnected)

	for i := 0; i < 200; i++ {
		p.adjustReputation(1)
	}
	if got := p.snapshotReputation(); got != ReputationCap {
		t.Fatalf("expected reputation capped at %d, got %d", ReputationCap, got)
	}

	p2 := newPeerState("peer2", 100)
	p2.setState(StateConnected)
	var crossed bool
	for i := 0; i < 11; i++ {
		_, crossed = p2.adjustReputation(-1)
	}
	if !crossed {
		t.Fatal("expected reputation floor crossed after 11 penalties")
	}
	if got := p2.snapshotReputation(); got != -11 {
		t.Fatalf("expected reputation -11, got %d", got)
	}
}

func TestPeerState_ThrottleOnNegativeReputation(t *testing.T) {
	p := newPeerState("peer1", 100)
	p.setState(StateConnected)
	p.adjustReputation(-1)
	if got := p.getState(); got != StateThrottled {
		t.Fatalf("expected throttled, got %v", got)
	}
	p.adjustReputation(2)
	if got := p.getState(); got != StateConnected {
		t.Fatalf("expected connected after recovery, got %v", got)
	}
}

func TestSeenSet_DedupAndEviction(t *testing.T) {
	s := newSeenSet(2)
	var a, b, c [32]byte
	a[0], b[0], c[0] = 1, 2, 3

	if s.containsAndAdd(a) {
		t.Fatal("expected first insert to report not-present")
	}
	if !s.containsAndAdd(a) {
		t.Fatal("expected second insert of same id to report present")
	}

	s.containsAndAdd(b)
	s.containsAndAdd(c) // evicts a, since capacity is 2 and a is now oldest

	if s.containsAndAdd(a) {
		t.Fatal("expected a to have been evicted")
	}
}
