package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/synapsenet/node/internal/crypto"
	"github.com/synapsenet/node/internal/model"
)

// receiveGrainsLoop implements the §4.6 receive path for grains.put:
// dedup, rate limit, verify, validate, commit, ack, score.
func (s *Swarm) receiveGrainsLoop(sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(s.ctx)
		if err != nil {
			s.log.Info("swarm: grains.put subscription closed", "error", err)
			return
		}
		if msg.GetFrom() == s.host.ID() {
			continue
		}
		s.handleGrainMsg(msg)
	}
}

func (s *Swarm) handleGrainMsg(msg *pubsub.Message) {
	ps := s.peerByLibp2pID(msg.GetFrom())

	g, err := model.WireDecode(msg.Data, crypto.Hash)
	if err != nil {
		s.adjustAndMaybeDisconnect(ps, -1, "decode error")
		s.rejectGrain("decode")
		return
	}

	// Step 1: dedup.
	if s.store.Contains(g.ID) || s.seen.containsAndAdd(g.ID) {
		return
	}

	// Step 2: per-peer ingress rate limit.
	if !ps.allow() {
		s.rejectGrain("rate_limit")
		return
	}

	// Step 3: signature verification.
	if !verifySignature(g) {
		s.adjustAndMaybeDisconnect(ps, -1, "bad signature")
		s.rejectGrain("signature")
		return
	}

	// Step 4: dimension/finiteness.
	if len(g.Vec) != s.dim || !finiteUnitVec(g.Vec) {
		s.adjustAndMaybeDisconnect(ps, -1, "invalid vector")
		s.rejectGrain("vector")
		return
	}

	// Step 5: commit, index, ack.
	if err := s.store.PutGrain(g); err != nil {
		s.log.Error("swarm: store grain failed", "error", err, "grain_id", fmt.Sprintf("%x", g.ID))
		return
	}
	if err := s.idx.Insert(g.ID, g.Vec); err != nil {
		s.log.Error("swarm: index insert failed", "error", err, "grain_id", fmt.Sprintf("%x", g.ID))
		return
	}

	ps.recordRecv()
	rep, _ := ps.adjustReputation(1)
	s.persistPeer(ps)
	s.log.Debug("swarm: grain accepted", "peer", ps.id, "reputation", rep)

	ack := ackMsg{GrainID: g.ID, PeerID: s.ourID}
	if data, err := json.Marshal(ack); err == nil {
		_ = s.publish(TopicGrainsAck, data)
	}

	// Step 6: PoE scoring, author-only credit.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.scorer.Apply(ctx, g); err != nil {
		s.log.Warn("swarm: poe scoring failed on received grain", "error", err)
	}
}

// adjustAndMaybeDisconnect decrements a peer's reputation and, if it
// crosses the floor, disconnects and deny-lists the peer (§4.6).
func (s *Swarm) adjustAndMaybeDisconnect(ps *peerState, delta int32, reason string) {
	rep, crossed := ps.adjustReputation(delta)
	s.log.Debug("swarm: reputation penalty", "peer", ps.id, "reason", reason, "reputation", rep)
	if crossed {
		ps.denyUntil(time.Now().Add(DenyListDuration))
		s.log.Warn("swarm: peer disconnected and deny-listed", "peer", ps.id, "reputation", rep)
	}
}

func finiteUnitVec(vec []float32) bool {
	var sumSq float64
	for _, f := range vec {
		v := float64(f)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		sumSq += v * v
	}
	return sumSq > 0
}

// receiveAcksLoop updates per-peer sent counters as grains.ack messages
// arrive for grains this node broadcast.
func (s *Swarm) receiveAcksLoop(sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(s.ctx)
		if err != nil {
			return
		}
		if msg.GetFrom() == s.host.ID() {
			continue
		}
		var ack ackMsg
		if err := json.Unmarshal(msg.Data, &ack); err != nil {
			continue
		}
		ps := s.peerByLibp2pID(msg.GetFrom())
		ps.recordSent()
	}
}

// receiveQueryKnnLoop answers distributed KNN queries originated by
// peers with a single local top-k search — no further forwarding (§4.7:
// "one hop, no flooding").
func (s *Swarm) receiveQueryKnnLoop(sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(s.ctx)
		if err != nil {
			return
		}
		if msg.GetFrom() == s.host.ID() {
			continue
		}
		var q queryKnnMsg
		if err := json.Unmarshal(msg.Data, &q); err != nil {
			continue
		}
		results, err := s.idx.Search(q.Vec, q.K)
		if err != nil {
			continue
		}
		out := make([]resultMsg, len(results))
		for i, r := range results {
			out[i] = resultMsg{GrainID: r.ID, CosSim: r.Sim, Source: s.ourID}
		}
		resp := queryRespMsg{QueryID: q.QueryID, Results: out, From: s.ourID}
		data, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		_ = s.publish(TopicQueryResp, data)
	}
}

// receiveQueryRespLoop delivers incoming responses to the originator-side
// queryRegistry keyed by query id.
func (s *Swarm) receiveQueryRespLoop(sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(s.ctx)
		if err != nil {
			return
		}
		if msg.GetFrom() == s.host.ID() {
			continue
		}
		var resp queryRespMsg
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			continue
		}
		s.queries.deliver(resp.QueryID, resp.Results)
	}
}
