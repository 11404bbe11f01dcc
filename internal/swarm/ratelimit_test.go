package swarm

import "testing"

// TestPeerState_RateLimit exercises §4.6's per-peer ingress token bucket:
// capacity 100, one token per grain, excess dropped without error (§8
// "rate limit" testable property).
func TestPeerState_RateLimit(t *testing.T) {
	p := newPeerState("peer1", 100)

	allowed := 0
	for i := 0; i < 150; i++ {
		if p.allow() {
			allowed++
		}
	}
	if allowed != 100 {
		t.Fatalf("expected exactly 100 grains admitted from a fresh 100-capacity bucket, got %d", allowed)
	}
	if p.allow() {
		t.Fatal("expected the bucket to be exhausted after its burst capacity is consumed")
	}
}
