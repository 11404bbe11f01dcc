package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/synapsenet/node/pkg/metrics"
	"github.com/synapsenet/node/pkg/mid"
)

// met is the process-wide registry every command and the swarm's receive
// path record against, the same single-Registry-per-process shape the
// teacher's cmd/ingest uses.
var met = metrics.New()

var (
	mGrainsAdded   = met.Counter("synapsenet_grains_added_total", "Grains committed via the add command")
	mGrainsRejected = func(reason string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("synapsenet_grains_rejected_total", "reason", reason), "Grains rejected during import or swarm receive")
	}
	mQueriesTotal  = met.Counter("synapsenet_queries_total", "Distributed KNN queries served")
	mQueryDuration = met.Histogram("synapsenet_query_duration_seconds", "End-to-end query command latency", nil)
	mPeersKnown    = met.Gauge("synapsenet_peers_known", "Peers recorded in the local store")
)

// serveMetrics starts the /metrics endpoint in the background, wrapped in
// the request logger middleware rather than calling met.ServeAsync
// directly, so scraping this node's own metrics port shows up in its logs
// like any other request.
func serveMetrics(port int, log *slog.Logger) {
	handler := mid.Chain(met.Handler(), mid.Logger(log))
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.Warn("node: metrics server stopped", "error", err)
		}
	}()
}
