// Package bus runs the node's internal message bus: an embedded
// nats-server instance plus a client connection, used to decouple
// ingestion from the swarm broadcaster
// (§9 — cyclic references broken by message passing). It is purely an
// in-process transport; external peer gossip goes over the libp2p swarm,
// not this bus.
//
// Grounded on the teacher's own test helpers (engine/ingest/full_coverage_boost_test.go,
// pkg/natsutil/coverage_boost_test.go), which spin up an embedded
// natsserver.Server with Port: -1 for fully local pub/sub — this package
// promotes that pattern from test-only scaffolding to a shipped component.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/synapsenet/node/internal/model"
	"github.com/synapsenet/node/pkg/natsutil"
)

// Subjects used on the internal bus.
const (
	SubjectGrainCommitted = "grain.committed"
	SubjectGrainScored    = "grain.scored"
	SubjectGrainBroadcast = "grain.broadcast"
	SubjectGrainReceived  = "grain.received"
)

// Bus wraps an embedded NATS server and client connection.
type Bus struct {
	server *natsserver.Server
	conn   *nats.Conn
}

// Start launches an embedded, in-process NATS server and connects a client
// to it. Nothing here is reachable from outside the host process.
func Start() (*Bus, error) {
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		return nil, fmt.Errorf("bus: new server: %w", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("bus: server not ready")
	}
	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("bus: connect: %w", err)
	}
	return &Bus{server: srv, conn: conn}, nil
}

// Close closes the client connection and shuts down the embedded server.
func (b *Bus) Close() {
	b.conn.Close()
	b.server.Shutdown()
}

// PublishCommitted announces that a grain was just durably committed to
// store and index, before PoE scoring runs.
func (b *Bus) PublishCommitted(ctx context.Context, g model.Grain) error {
	return natsutil.Publish(ctx, b.conn, SubjectGrainCommitted, g)
}

// PublishScored announces that a grain finished PoE scoring.
func (b *Bus) PublishScored(ctx context.Context, g model.Grain) error {
	return natsutil.Publish(ctx, b.conn, SubjectGrainScored, g)
}

// Publish implements ingest.Broadcaster: publishing to grain.broadcast is
// the hand-off point from ingestion to the swarm component, which
// subscribes and republishes over gossip.
func (b *Bus) Publish(ctx context.Context, g model.Grain) error {
	return natsutil.Publish(ctx, b.conn, SubjectGrainBroadcast, g)
}

// PublishReceived announces a grain accepted from a peer, after local
// verification and dedup, for the ingest-adjacent local bookkeeping
// (reputation, ack) to react to.
func (b *Bus) PublishReceived(ctx context.Context, g model.Grain) error {
	return natsutil.Publish(ctx, b.conn, SubjectGrainReceived, g)
}

// SubscribeBroadcast registers handler for grains the local node just
// produced and wants gossiped out by the swarm.
func (b *Bus) SubscribeBroadcast(handler func(context.Context, model.Grain)) (*nats.Subscription, error) {
	return natsutil.Subscribe(b.conn, SubjectGrainBroadcast, handler)
}

// SubscribeReceived registers handler for grains accepted from peers.
func (b *Bus) SubscribeReceived(handler func(context.Context, model.Grain)) (*nats.Subscription, error) {
	return natsutil.Subscribe(b.conn, SubjectGrainReceived, handler)
}

// SubscribeScored registers handler for grains that finished PoE scoring.
func (b *Bus) SubscribeScored(handler func(context.Context, model.Grain)) (*nats.Subscription, error) {
	return natsutil.Subscribe(b.conn, SubjectGrainScored, handler)
}
