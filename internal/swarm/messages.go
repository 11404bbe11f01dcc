package swarm

// ackMsg is published on grains.ack after a grain clears the receive path.
type ackMsg struct {
	GrainID [32]byte `json:"grain_id"`
	PeerID  string   `json:"peer_id"`
}

// queryKnnMsg is published on query.knn to originate a distributed KNN
// query (§4.6).
type queryKnnMsg struct {
	QueryID string    `json:"query_id"`
	Vec     []float32 `json:"vec"`
	K       int       `json:"k"`
	From    string    `json:"from"`
}

// resultMsg is one hit inside a queryRespMsg.
type resultMsg struct {
	GrainID [32]byte `json:"grain_id"`
	CosSim  float32  `json:"cos_sim"`
	Source  string   `json:"source"` // responding peer id
}

// queryRespMsg is published on query.resp by every peer that answers a
// queryKnnMsg.
type queryRespMsg struct {
	QueryID string      `json:"query_id"`
	Results []resultMsg `json:"results"`
	From    string      `json:"from"`
}
