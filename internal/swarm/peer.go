package swarm

import (
	"sync"
	"time"

	"github.com/synapsenet/node/internal/model"
	"github.com/synapsenet/node/pkg/resilience"
)

// ConnState is a peer connection's place in the swarm's lifecycle
// (§4.6): Discovered → Handshaking → Connected → Disconnected, with a
// side transition to Throttled while reputation is negative.
type ConnState int

const (
	StateDiscovered ConnState = iota
	StateHandshaking
	StateConnected
	StateThrottled
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateThrottled:
		return "throttled"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	// ReputationCap is the maximum reputation a peer can accrue.
	ReputationCap = 100
	// ReputationFloor triggers disconnect + deny-list once crossed.
	ReputationFloor = -10
	// DenyListDuration is how long a disconnected, low-reputation peer
	// stays denied before it can reconnect.
	DenyListDuration = time.Hour
)

// peerState is the swarm's live bookkeeping for one connected peer,
// accessed only from the swarm's own goroutines per §5's "all external
// access goes through message channels" rule — callers outside this
// package only ever see a snapshot via Peers().
type peerState struct {
	mu          sync.Mutex
	id          string // libp2p peer ID string, the peer's identity (§4.6)
	addrs       []string
	state       ConnState
	reputation  int32
	limiter     *resilience.Limiter
	deniedUntil time.Time
	grainsRecv  int64
	grainsSent  int64
	lastSeen    time.Time
}

func newPeerState(id string, grainsPerMinute int) *peerState {
	return &peerState{
		id:    id,
		state: StateDiscovered,
		limiter: resilience.NewLimiter(resilience.LimiterOpts{
			Rate:  float64(grainsPerMinute) / 60.0,
			Burst: grainsPerMinute,
		}),
		lastSeen: time.Now(),
	}
}

// allow enforces the per-peer ingress token bucket (§4.6 step 2).
func (p *peerState) allow() bool {
	return p.limiter.Allow()
}

// adjustReputation applies delta, clamping to [ReputationFloor-1, ReputationCap]
// only in the upward direction (the floor itself triggers disconnection by
// the caller, not clamping here — a peer must actually cross it once).
func (p *peerState) adjustReputation(delta int32) (rep int32, crossedFloor bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	was := p.reputation
	p.reputation += delta
	if p.reputation > ReputationCap {
		p.reputation = ReputationCap
	}
	if was >= ReputationFloor && p.reputation < ReputationFloor {
		crossedFloor = true
	}
	p.updateThrottleLocked()
	return p.reputation, crossedFloor
}

// updateThrottleLocked toggles Connected/Throttled based on reputation
// sign, the Connected<->Throttled half of the state machine (§4.6).
// Caller must hold p.mu.
func (p *peerState) updateThrottleLocked() {
	if p.state != StateConnected && p.state != StateThrottled {
		return
	}
	if p.reputation < 0 {
		p.state = StateThrottled
	} else {
		p.state = StateConnected
	}
}

func (p *peerState) snapshotReputation() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reputation
}

func (p *peerState) setState(s ConnState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *peerState) getState() ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *peerState) denyUntil(t time.Time) {
	p.mu.Lock()
	p.deniedUntil = t
	p.state = StateDisconnected
	p.mu.Unlock()
}

func (p *peerState) denied(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Before(p.deniedUntil)
}

func (p *peerState) recordRecv() {
	p.mu.Lock()
	p.grainsRecv++
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

func (p *peerState) recordSent() {
	p.mu.Lock()
	p.grainsSent++
	p.mu.Unlock()
}

// toPeerRecord snapshots this peer's fields into the model.PeerRecord shape
// the store persists, under lock.
func (p *peerState) toPeerRecord() model.PeerRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.PeerRecord{
		PeerID:        p.id,
		Addrs:         append([]string(nil), p.addrs...),
		GrainsRecv:    p.grainsRecv,
		GrainsSent:    p.grainsSent,
		Reputation:    p.reputation,
		LastSeenMs:    p.lastSeen.UnixMilli(),
		DeniedUntilMs: p.deniedUntil.UnixMilli(),
	}
}
