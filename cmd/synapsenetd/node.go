package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/synapsenet/node/internal/bus"
	"github.com/synapsenet/node/internal/config"
	"github.com/synapsenet/node/internal/crypto"
	"github.com/synapsenet/node/internal/embed"
	"github.com/synapsenet/node/internal/graphmirror"
	"github.com/synapsenet/node/internal/index"
	"github.com/synapsenet/node/internal/ingest"
	"github.com/synapsenet/node/internal/model"
	"github.com/synapsenet/node/internal/poe"
	"github.com/synapsenet/node/internal/query"
	"github.com/synapsenet/node/internal/store"
	"github.com/synapsenet/node/internal/swarm"
	"github.com/synapsenet/node/pkg/fn"
)

// node bundles every wired-up component a CLI command needs. openNode
// assembles them in this order: store, signing key, index and its mirrors,
// poe, bus, embed, swarm, query, ingest.
type node struct {
	cfg    config.Config
	log    *slog.Logger
	store  *store.Store
	idx    *index.Index
	mirror *index.MirroredIndex
	graph  *graphmirror.Mirror
	signer *crypto.FileKeyProvider
	scorer *poe.Scorer
	bus    *bus.Bus
	swarm  *swarm.Swarm
	coord  *query.Coordinator
	pipe   fn.Stage[ingest.Request, model.Grain]
}

// openNode wires every component for cfg and returns a ready node. Callers
// must defer node.Close().
func openNode(cfg config.Config, log *slog.Logger) (*node, error) {
	if cfg.MetricsPort > 0 {
		serveMetrics(cfg.MetricsPort, log)
	}

	st, err := store.Open(filepath.Join(cfg.NodeDataDir, "synapsenet.db"))
	if err != nil {
		return nil, err
	}

	signer, err := crypto.LoadOrCreateFileKeyProvider(cfg.NodeDataDir)
	if err != nil {
		st.Close()
		return nil, model.New(model.KindSignature, "node.data_dir", err)
	}

	idxOpts := index.Options{EfConstruction: cfg.IndexEfConstruction, EfSearch: cfg.IndexEfSearch, M: 16}
	idx := index.New(cfg.EmbeddingDim, idxOpts)

	var qdrantMirror *index.QdrantMirror
	if cfg.VectorMirrorQdrantAddr != "" {
		qdrantMirror, err = index.NewQdrantMirror(cfg.VectorMirrorQdrantAddr, cfg.VectorMirrorQdrantCollection)
		if err != nil {
			log.Warn("node: qdrant mirror unavailable", "error", err)
			qdrantMirror = nil
		} else if err := qdrantMirror.EnsureCollection(context.Background(), cfg.EmbeddingDim); err != nil {
			log.Warn("node: qdrant ensure collection failed", "error", err)
		}
	}
	mirrored := index.NewMirroredIndex(idx, qdrantMirror, log)

	var graphMirror *graphmirror.Mirror
	if cfg.GraphNeo4jURL != "" {
		graphMirror, err = graphmirror.Open(context.Background(), cfg.GraphNeo4jURL, cfg.GraphNeo4jUser, cfg.GraphNeo4jPassword)
		if err != nil {
			log.Warn("node: neo4j mirror unavailable", "error", err)
			graphMirror = nil
		} else {
			st.SetGraphMirror(graphMirror)
		}
	}

	scorer := poe.New(idx, st, poe.Options{
		Alpha:        cfg.PoEAlpha,
		Beta:         cfg.PoEBeta,
		Gamma:        cfg.PoEGamma,
		TauNovelty:   cfg.PoETauNovelty,
		TauCoherence: cfg.PoETauCoherence,
		NeighborK:    cfg.PoENeighborK,
	})

	b, err := bus.Start()
	if err != nil {
		st.Close()
		return nil, model.New(model.KindNetwork, "bus", err)
	}

	producer := embed.NewOllamaProducer("http://localhost:11434", "nomic-embed-text", cfg.EmbeddingDim)

	var sw *swarm.Swarm
	var coord *query.Coordinator
	if cfg.P2PEnabled {
		swarmCfg := swarm.DefaultConfig()
		swarmCfg.ListenAddr = fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.P2PPort)
		swarmCfg.BootstrapPeers = cfg.P2PBootstrap
		swarmCfg.LANDiscovery = cfg.P2PLANDiscovery
		swarmCfg.GrainsPerMinutePerPeer = cfg.RateLimitGrainsPerMinutePerPeer
		swarmCfg.QueryDeadline = cfg.QueryDeadline()
		swarmCfg.Metrics = met

		ourID := fmt.Sprintf("%x", signer.PublicKey())
		sw, err = swarm.New(swarmCfg, cfg.EmbeddingDim, ourID, st, mirrored, scorer, log)
		if err != nil {
			b.Close()
			st.Close()
			return nil, model.New(model.KindNetwork, "swarm", err)
		}
		if err := sw.Start(); err != nil {
			b.Close()
			st.Close()
			return nil, model.New(model.KindNetwork, "swarm.start", err)
		}

		// §9 decoupling: grains the pipeline enqueues for broadcast arrive
		// here over the internal bus and are handed to the swarm's own
		// gossip Publish — the pipeline itself never imports swarm.
		if _, err := b.SubscribeBroadcast(func(ctx context.Context, g model.Grain) {
			if err := sw.Publish(ctx, g); err != nil {
				log.Warn("node: swarm publish failed", "error", err, "grain_id", fmt.Sprintf("%x", g.ID))
			}
		}); err != nil {
			log.Warn("node: bus subscribe broadcast failed", "error", err)
		}

		coord = query.New(producer, mirrored, sw, false)
	} else {
		coord = query.New(producer, mirrored, nil, false)
	}

	deps := ingest.Deps{
		Dim:         cfg.EmbeddingDim,
		Producer:    producer,
		Signer:      signer,
		Store:       st,
		Index:       mirrored,
		Scorer:      scorer,
		Broadcaster: b,
		Logger:      log,
	}
	pipeline := ingest.NewPipeline(deps)

	return &node{
		cfg:    cfg,
		log:    log,
		store:  st,
		idx:    idx,
		mirror: mirrored,
		graph:  graphMirror,
		signer: signer,
		scorer: scorer,
		bus:    b,
		swarm:  sw,
		coord:  coord,
		pipe:   pipeline,
	}, nil
}

// Close shuts every component down in reverse wiring order (§5: cooperative
// shutdown — stop subscriptions, close the swarm host, flush bbolt).
func (n *node) Close() {
	if n.swarm != nil {
		_ = n.swarm.Close()
	}
	if n.bus != nil {
		n.bus.Close()
	}
	if n.graph != nil {
		_ = n.graph.Close(context.Background())
	}
	if n.store != nil {
		_ = n.store.Close()
	}
}

func loadConfigOrDefault(configFile, dataDirOverride string) (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, err
	}
	if dataDirOverride != "" {
		cfg.NodeDataDir = dataDirOverride
	}
	return cfg, nil
}
