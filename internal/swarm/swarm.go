// Package swarm implements the P2P gossip overlay (§4.6): peer discovery,
// encrypted transport, the grains.put/grains.ack/query.knn/query.resp
// topics, per-peer rate limiting, signature verification on receipt, and
// reputation-driven connection throttling/deny-listing.
//
// Grounded on orbas1-Synnergy's core/network.go (libp2p.New + GossipSub +
// mdns.NewMdnsService + DialSeed + peerLock-guarded peer table); the
// ambient logging here uses log/slog, the teacher's own idiom, rather
// than that repo's logrus, per this module's logging decision.
package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"

	"github.com/synapsenet/node/internal/crypto"
	"github.com/synapsenet/node/internal/index"
	"github.com/synapsenet/node/internal/model"
	"github.com/synapsenet/node/internal/poe"
	"github.com/synapsenet/node/pkg/metrics"
)

const (
	TopicGrainsPut = "grains.put"
	TopicGrainsAck = "grains.ack"
	TopicQueryKnn  = "query.knn"
	TopicQueryResp = "query.resp"

	broadcastSeenCapacity = 64 * 1024
)

// Store is the subset of internal/store.Store the swarm needs for the
// receive path and peer persistence.
type Store interface {
	Contains(id [32]byte) bool
	PutGrain(g model.Grain) error
	UpsertPeer(p model.PeerRecord) error
}

// Index is the subset of internal/index.Index the swarm needs.
type Index interface {
	Insert(id [32]byte, vec []float32) error
	Search(vec []float32, k int) ([]index.Result, error)
}

// Scorer runs PoE locally against a received grain (§4.6 step 6: credit
// goes to the grain's author, not the relaying peer).
type Scorer interface {
	Apply(ctx context.Context, g model.Grain) (poe.Components, error)
}

// Config configures the swarm's transport, discovery, and policy knobs
// (§4.8).
type Config struct {
	ListenAddr             string
	BootstrapPeers         []string
	DiscoveryTag           string
	LANDiscovery           bool
	GrainsPerMinutePerPeer int
	QueryDeadline          time.Duration

	// Metrics is the process-wide registry grains.put rejections are
	// recorded against. Nil disables recording.
	Metrics *metrics.Registry
}

// DefaultConfig mirrors the §4.8 defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:             "/ip4/0.0.0.0/tcp/0",
		DiscoveryTag:           "synapsenet",
		LANDiscovery:           true,
		GrainsPerMinutePerPeer: 100,
		QueryDeadline:          2 * time.Second,
	}
}

// Swarm is the node's live P2P overlay.
type Swarm struct {
	host   host.Host
	pubsub *pubsub.PubSub

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic
	subs      map[string]*pubsub.Subscription

	peerLock sync.RWMutex
	peers    map[string]*peerState

	dim     int
	cfg     Config
	store   Store
	idx     Index
	scorer  Scorer
	log     *slog.Logger
	ourID   string
	seen    *seenSet
	queries *queryRegistry

	ctx    context.Context
	cancel context.CancelFunc

	metrics *metrics.Registry
}

// rejectGrain records a dropped grains.put message against the shared
// metrics registry, a no-op when the swarm was built without one.
func (s *Swarm) rejectGrain(reason string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Counter(metrics.WithLabels("synapsenet_grains_rejected_total", "reason", reason), "Grains rejected during import or swarm receive").Inc()
}

// New creates a libp2p host, joins GossipSub, and wires mDNS discovery plus
// any configured bootstrap peers. ourPeerID identifies this node to the
// rest of the swarm — the hex encoding of its long-term signing public key.
func New(cfg Config, dim int, ourPeerID string, store Store, idx Index, scorer Scorer, log *slog.Logger) (*Swarm, error) {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("swarm: new host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("swarm: new gossipsub: %w", err)
	}

	s := &Swarm{
		host:    h,
		pubsub:  ps,
		topics:  make(map[string]*pubsub.Topic),
		subs:    make(map[string]*pubsub.Subscription),
		peers:   make(map[string]*peerState),
		dim:     dim,
		cfg:     cfg,
		store:   store,
		idx:     idx,
		scorer:  scorer,
		log:     log,
		ourID:   ourPeerID,
		seen:    newSeenSet(broadcastSeenCapacity),
		queries: newQueryRegistry(),
		ctx:     ctx,
		cancel:  cancel,
		metrics: cfg.Metrics,
	}

	if cfg.LANDiscovery {
		mdns.NewMdnsService(h, cfg.DiscoveryTag, s)
	}

	if err := s.dialSeeds(cfg.BootstrapPeers); err != nil {
		log.Warn("swarm: bootstrap dial errors", "error", err)
	}

	return s, nil
}

// Ensure Swarm implements mdns.Notifee.
var _ mdns.Notifee = (*Swarm)(nil)

// HandlePeerFound connects to a peer discovered via local-network
// multicast, completing the Discovered → Handshaking → Connected
// transition (§4.6).
func (s *Swarm) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == s.host.ID() {
		return
	}
	id := info.ID.String()
	s.peerLock.RLock()
	_, exists := s.peers[id]
	s.peerLock.RUnlock()
	if exists {
		return
	}

	ps := newPeerState(id, s.cfg.GrainsPerMinutePerPeer)
	ps.setState(StateHandshaking)
	if err := s.host.Connect(s.ctx, info); err != nil {
		s.log.Warn("swarm: connect to discovered peer failed", "peer", id, "error", err)
		return
	}
	ps.setState(StateConnected)
	ps.addrs = addrStrings(info)

	s.peerLock.Lock()
	s.peers[id] = ps
	s.peerLock.Unlock()
	s.persistPeer(ps)
	s.log.Info("swarm: connected via mdns", "peer", id)
}

func addrStrings(info peer.AddrInfo) []string {
	out := make([]string, len(info.Addrs))
	for i, a := range info.Addrs {
		out[i] = a.String()
	}
	return out
}

// persistPeer mirrors a connected peer's current state into the store's
// peers table so the "peers" CLI command can report it across process
// restarts, not just for the lifetime of this swarm instance.
func (s *Swarm) persistPeer(ps *peerState) {
	rec := ps.toPeerRecord()
	rec.ConnectedAtMs = time.Now().UnixMilli()
	if err := s.store.UpsertPeer(rec); err != nil {
		s.log.Warn("swarm: persist peer failed", "peer", ps.id, "error", err)
	}
}

func (s *Swarm) dialSeeds(seeds []string) error {
	var firstErr error
	for _, addr := range seeds {
		ai, err := peer.AddrInfoFromString(addr)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("swarm: invalid bootstrap addr %s: %w", addr, err)
			}
			continue
		}
		ps := newPeerState(ai.ID.String(), s.cfg.GrainsPerMinutePerPeer)
		ps.setState(StateHandshaking)
		if err := s.host.Connect(s.ctx, *ai); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("swarm: dial %s: %w", addr, err)
			}
			continue
		}
		ps.setState(StateConnected)
		ps.addrs = []string{addr}
		s.peerLock.Lock()
		s.peers[ai.ID.String()] = ps
		s.peerLock.Unlock()
		s.persistPeer(ps)
	}
	return firstErr
}

// Start joins all four topics and launches their receive loops.
func (s *Swarm) Start() error {
	for _, topic := range []string{TopicGrainsPut, TopicGrainsAck, TopicQueryKnn, TopicQueryResp} {
		if _, err := s.join(topic); err != nil {
			return err
		}
	}

	grainsSub, err := s.subscribe(TopicGrainsPut)
	if err != nil {
		return err
	}
	ackSub, err := s.subscribe(TopicGrainsAck)
	if err != nil {
		return err
	}
	queryKnnSub, err := s.subscribe(TopicQueryKnn)
	if err != nil {
		return err
	}
	queryRespSub, err := s.subscribe(TopicQueryResp)
	if err != nil {
		return err
	}

	go s.receiveGrainsLoop(grainsSub)
	go s.receiveAcksLoop(ackSub)
	go s.receiveQueryKnnLoop(queryKnnSub)
	go s.receiveQueryRespLoop(queryRespSub)
	return nil
}

// Close cancels the swarm's context, which ends its receive loops, and
// closes the libp2p host.
func (s *Swarm) Close() error {
	s.cancel()
	return s.host.Close()
}

func (s *Swarm) join(topic string) (*pubsub.Topic, error) {
	s.topicLock.Lock()
	defer s.topicLock.Unlock()
	if t, ok := s.topics[topic]; ok {
		return t, nil
	}
	t, err := s.pubsub.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("swarm: join %s: %w", topic, err)
	}
	s.topics[topic] = t
	return t, nil
}

func (s *Swarm) subscribe(topic string) (*pubsub.Subscription, error) {
	t, err := s.join(topic)
	if err != nil {
		return nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("swarm: subscribe %s: %w", topic, err)
	}
	s.subs[topic] = sub
	return sub, nil
}

func (s *Swarm) publish(topic string, data []byte) error {
	t, err := s.join(topic)
	if err != nil {
		return err
	}
	return t.Publish(s.ctx, data)
}

// Publish implements ingest.Broadcaster: serialize the grain with the §6
// wire encoding and gossip it on grains.put, suppressing republish via the
// already-broadcast LRU.
func (s *Swarm) Publish(_ context.Context, g model.Grain) error {
	if s.seen.containsAndAdd(g.ID) {
		return nil
	}
	return s.publish(TopicGrainsPut, model.WireEncode(g))
}

func (s *Swarm) peerByLibp2pID(id peer.ID) *peerState {
	key := id.String()
	s.peerLock.RLock()
	ps, ok := s.peers[key]
	s.peerLock.RUnlock()
	if ok {
		return ps
	}
	ps = newPeerState(key, s.cfg.GrainsPerMinutePerPeer)
	ps.setState(StateConnected)
	s.peerLock.Lock()
	s.peers[key] = ps
	s.peerLock.Unlock()
	return ps
}

// Peers returns a point-in-time snapshot of known peer records, mirroring
// swarm state into the model.PeerRecord shape the store persists.
func (s *Swarm) Peers() []model.PeerRecord {
	s.peerLock.RLock()
	defer s.peerLock.RUnlock()
	out := make([]model.PeerRecord, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p.toPeerRecord())
	}
	return out
}

// newQueryID generates a fresh distributed-query identifier.
func newQueryID() string { return uuid.NewString() }

func verifySignature(g model.Grain) bool {
	wantID := crypto.Hash(model.HashInput(g.Vec, g.Meta, g.Meta.AuthorPK))
	if wantID != g.ID {
		return false
	}
	return crypto.VerifyGrainID(g.Meta.AuthorPK, g.ID, g.Sig)
}
