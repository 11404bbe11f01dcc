// Package config loads and validates the node's single keyed configuration
// structure (§4.8) via Viper, with .env overrides loaded through godotenv —
// the same combination orbas1-Synnergy's cmd/cli wires up before booting
// its network node.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/synapsenet/node/internal/model"
)

// Config is every recognized option from §4.8, flattened into a Go struct.
type Config struct {
	NodeDataDir string

	EmbeddingDim int

	P2PEnabled       bool
	P2PPort          int
	P2PBootstrap     []string
	P2PLANDiscovery  bool

	IndexEfConstruction int
	IndexEfSearch       int

	PoEAlpha        float64
	PoEBeta         float64
	PoEGamma        float64
	PoETauNovelty   float64
	PoETauCoherence float64
	PoENeighborK    int

	RateLimitGrainsPerMinutePerPeer int

	QueryDeadlineMs int

	GraphNeo4jURL      string
	GraphNeo4jUser     string
	GraphNeo4jPassword string

	VectorMirrorQdrantAddr       string
	VectorMirrorQdrantCollection string

	MetricsPort int
}

// QueryDeadline returns QueryDeadlineMs as a time.Duration.
func (c Config) QueryDeadline() time.Duration {
	return time.Duration(c.QueryDeadlineMs) * time.Millisecond
}

// Defaults mirror the defaults named throughout §4.5/§4.6/§4.8.
func Defaults() Config {
	return Config{
		NodeDataDir:                     "./data",
		EmbeddingDim:                    768,
		P2PEnabled:                      true,
		P2PPort:                         0,
		P2PLANDiscovery:                 true,
		IndexEfConstruction:             200,
		IndexEfSearch:                   64,
		PoEAlpha:                        0.5,
		PoEBeta:                         0.3,
		PoEGamma:                        0.2,
		PoETauNovelty:                   0.1,
		PoETauCoherence:                 0.1,
		PoENeighborK:                    8,
		RateLimitGrainsPerMinutePerPeer: 100,
		QueryDeadlineMs:                 2000,
		MetricsPort:                     9090,
	}
}

// bind maps every §4.8 dotted key to a viper.SetDefault call so Load can
// read them uniformly regardless of source (file, env, flag).
func bind(v *viper.Viper, d Config) {
	v.SetDefault("node.data_dir", d.NodeDataDir)
	v.SetDefault("embedding.dim", d.EmbeddingDim)
	v.SetDefault("p2p.enabled", d.P2PEnabled)
	v.SetDefault("p2p.port", d.P2PPort)
	v.SetDefault("p2p.bootstrap", d.P2PBootstrap)
	v.SetDefault("p2p.lan_discovery", d.P2PLANDiscovery)
	v.SetDefault("storage.index.ef_construction", d.IndexEfConstruction)
	v.SetDefault("storage.index.ef_search", d.IndexEfSearch)
	v.SetDefault("poe.alpha", d.PoEAlpha)
	v.SetDefault("poe.beta", d.PoEBeta)
	v.SetDefault("poe.gamma", d.PoEGamma)
	v.SetDefault("poe.tau_novelty", d.PoETauNovelty)
	v.SetDefault("poe.tau_coherence", d.PoETauCoherence)
	v.SetDefault("poe.neighbor_k", d.PoENeighborK)
	v.SetDefault("ratelimit.grains_per_minute_per_peer", d.RateLimitGrainsPerMinutePerPeer)
	v.SetDefault("query.deadline_ms", d.QueryDeadlineMs)
	v.SetDefault("graph.neo4j_url", d.GraphNeo4jURL)
	v.SetDefault("graph.neo4j_user", d.GraphNeo4jUser)
	v.SetDefault("graph.neo4j_password", d.GraphNeo4jPassword)
	v.SetDefault("vector_mirror.qdrant_addr", d.VectorMirrorQdrantAddr)
	v.SetDefault("vector_mirror.qdrant_collection", d.VectorMirrorQdrantCollection)
	v.SetDefault("metrics.port", d.MetricsPort)
}

// Load reads configPath (if non-empty) plus any SYNAPSENET_-prefixed
// environment variables (loaded from a .env file first, if present) and
// returns a validated Config. Invalid values fail with a location-tagged
// *model.Error (§4.8: "Invalid values fail start-up with a location-tagged
// error").
func Load(configPath string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	bind(v, Defaults())

	v.SetEnvPrefix("synapsenet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, model.New(model.KindConfig, configPath, err)
		}
	}

	c := Config{
		NodeDataDir:                     v.GetString("node.data_dir"),
		EmbeddingDim:                    v.GetInt("embedding.dim"),
		P2PEnabled:                      v.GetBool("p2p.enabled"),
		P2PPort:                         v.GetInt("p2p.port"),
		P2PBootstrap:                    v.GetStringSlice("p2p.bootstrap"),
		P2PLANDiscovery:                 v.GetBool("p2p.lan_discovery"),
		IndexEfConstruction:             v.GetInt("storage.index.ef_construction"),
		IndexEfSearch:                   v.GetInt("storage.index.ef_search"),
		PoEAlpha:                        v.GetFloat64("poe.alpha"),
		PoEBeta:                         v.GetFloat64("poe.beta"),
		PoEGamma:                        v.GetFloat64("poe.gamma"),
		PoETauNovelty:                   v.GetFloat64("poe.tau_novelty"),
		PoETauCoherence:                 v.GetFloat64("poe.tau_coherence"),
		PoENeighborK:                    v.GetInt("poe.neighbor_k"),
		RateLimitGrainsPerMinutePerPeer: v.GetInt("ratelimit.grains_per_minute_per_peer"),
		QueryDeadlineMs:                 v.GetInt("query.deadline_ms"),
		GraphNeo4jURL:                   v.GetString("graph.neo4j_url"),
		GraphNeo4jUser:                  v.GetString("graph.neo4j_user"),
		GraphNeo4jPassword:              v.GetString("graph.neo4j_password"),
		VectorMirrorQdrantAddr:          v.GetString("vector_mirror.qdrant_addr"),
		VectorMirrorQdrantCollection:    v.GetString("vector_mirror.qdrant_collection"),
		MetricsPort:                     v.GetInt("metrics.port"),
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every field's location-tagged invariant.
func (c Config) Validate() error {
	if c.NodeDataDir == "" {
		return model.New(model.KindConfig, "node.data_dir", fmt.Errorf("must not be empty"))
	}
	if c.EmbeddingDim <= 0 {
		return model.New(model.KindConfig, "embedding.dim", fmt.Errorf("must be positive"))
	}
	if c.P2PPort < 0 || c.P2PPort > 65535 {
		return model.New(model.KindConfig, "p2p.port", fmt.Errorf("out of range"))
	}
	if c.IndexEfConstruction <= 0 {
		return model.New(model.KindConfig, "storage.index.ef_construction", fmt.Errorf("must be positive"))
	}
	if c.IndexEfSearch <= 0 {
		return model.New(model.KindConfig, "storage.index.ef_search", fmt.Errorf("must be positive"))
	}
	if c.PoEAlpha < 0 || c.PoEBeta < 0 || c.PoEGamma < 0 {
		return model.New(model.KindConfig, "poe.alpha/beta/gamma", fmt.Errorf("weights must be non-negative"))
	}
	if c.PoETauNovelty < 0 || c.PoETauNovelty > 1 {
		return model.New(model.KindConfig, "poe.tau_novelty", fmt.Errorf("must be in [0,1]"))
	}
	if c.PoETauCoherence < 0 || c.PoETauCoherence > 1 {
		return model.New(model.KindConfig, "poe.tau_coherence", fmt.Errorf("must be in [0,1]"))
	}
	if c.PoENeighborK <= 0 {
		return model.New(model.KindConfig, "poe.neighbor_k", fmt.Errorf("must be positive"))
	}
	if c.RateLimitGrainsPerMinutePerPeer <= 0 {
		return model.New(model.KindConfig, "ratelimit.grains_per_minute_per_peer", fmt.Errorf("must be positive"))
	}
	if c.QueryDeadlineMs <= 0 {
		return model.New(model.KindConfig, "query.deadline_ms", fmt.Errorf("must be positive"))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return model.New(model.KindConfig, "metrics.port", fmt.Errorf("out of range"))
	}
	return nil
}
