package ingest

// Request is the caller-supplied input to add_grain: raw text plus the
// metadata fields that travel alongside the embedding (§4.4).
type Request struct {
	Text      string
	AuthorPK  [32]byte
	CreatedMs int64
	Tags      []string
	MIME      string
	Lang      string
	Title     string
	Summary   string
}

// embeddedReq carries the request forward with its raw (not yet normalized)
// embedding attached.
type embeddedReq struct {
	Request
	Vec []float32
}
