package model

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
)

// CanonicalMetaBytes deterministically encodes a Meta (excluding AuthorPK,
// which the caller appends separately per §3's `vec ‖ canonical(meta) ‖
// author_pk` hash input) using a fixed field order, length-prefixed
// strings, lexicographically sorted tags, and little-endian fixed-width
// integers — the cross-language-stable layout required by §4.1.
func CanonicalMetaBytes(m Meta) []byte {
	var buf bytes.Buffer

	var created [8]byte
	binary.LittleEndian.PutUint64(created[:], uint64(m.CreatedMs))
	buf.Write(created[:])

	tags := make([]string, len(m.Tags))
	copy(tags, m.Tags)
	sort.Strings(tags)
	writeStringSlice(&buf, tags)

	writeString(&buf, m.MIME)
	writeString(&buf, m.Lang)
	writeString(&buf, m.Title)
	writeString(&buf, m.Summary)

	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	var ln [4]byte
	binary.LittleEndian.PutUint32(ln[:], uint32(len(s)))
	buf.Write(ln[:])
	buf.WriteString(s)
}

func writeStringSlice(buf *bytes.Buffer, ss []string) {
	var n [2]byte
	binary.LittleEndian.PutUint16(n[:], uint16(len(ss)))
	buf.Write(n[:])
	for _, s := range ss {
		writeString(buf, s)
	}
}

// CanonicalVecBytes encodes a float32 vector as dim * 4 bytes, little-endian,
// the layout shared by the hash input and the §6 wire format's trailing
// vector section.
func CanonicalVecBytes(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// HashInput assembles the exact byte sequence I1 hashes: vec, then
// canonical(meta), then the 32-byte author public key.
func HashInput(vec []float32, meta Meta, authorPK [32]byte) []byte {
	var buf bytes.Buffer
	buf.Write(CanonicalVecBytes(vec))
	buf.Write(CanonicalMetaBytes(meta))
	buf.Write(authorPK[:])
	return buf.Bytes()
}

// LinkHashInput assembles the byte sequence a Link's ID is hashed from and
// its Sig covers: from_id, to_id, weight, rationale, author_pk, created_ms,
// mirroring HashInput's "identify then sign the identity" shape for grains.
func LinkHashInput(fromID, toID [32]byte, weight float64, rationale string, authorPK [32]byte, createdMs int64) []byte {
	var buf bytes.Buffer
	buf.Write(fromID[:])
	buf.Write(toID[:])
	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], math.Float64bits(weight))
	buf.Write(w[:])
	writeString(&buf, rationale)
	buf.Write(authorPK[:])
	var created [8]byte
	binary.LittleEndian.PutUint64(created[:], uint64(createdMs))
	buf.Write(created[:])
	return buf.Bytes()
}

// WireVersion is the current §6 wire format version byte.
const WireVersion byte = 1

// WireEncode serializes a full Grain using the §6 wire layout: a fixed
// header (version, dim u16 LE, timestamp i64 LE, author_pk, sig) followed
// by length-prefixed tags/mime/lang/title/summary and the raw vector.
func WireEncode(g Grain) []byte {
	var buf bytes.Buffer
	buf.WriteByte(WireVersion)

	var dim [2]byte
	binary.LittleEndian.PutUint16(dim[:], uint16(len(g.Vec)))
	buf.Write(dim[:])

	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(g.Meta.CreatedMs))
	buf.Write(ts[:])

	buf.Write(g.Meta.AuthorPK[:])
	buf.Write(g.Sig[:])

	tags := make([]string, len(g.Meta.Tags))
	copy(tags, g.Meta.Tags)
	sort.Strings(tags)
	writeStringSlice(&buf, tags)
	writeString(&buf, g.Meta.MIME)
	writeString(&buf, g.Meta.Lang)
	writeString(&buf, g.Meta.Title)
	writeString(&buf, g.Meta.Summary)

	buf.Write(CanonicalVecBytes(g.Vec))
	return buf.Bytes()
}

// WireDecode parses the §6 layout produced by WireEncode and recomputes the
// grain's ID from the canonical hash input. Malformed or truncated input
// returns ErrDimensionMismatch; it never panics.
func WireDecode(b []byte, hash func([]byte) [32]byte) (Grain, error) {
	var g Grain
	r := bytes.NewReader(b)

	version, err := r.ReadByte()
	if err != nil {
		return g, ErrDimensionMismatch
	}
	_ = version

	var dim [2]byte
	if _, err := readFull(r, dim[:]); err != nil {
		return g, err
	}
	n := int(binary.LittleEndian.Uint16(dim[:]))

	var ts [8]byte
	if _, err := readFull(r, ts[:]); err != nil {
		return g, err
	}
	g.Meta.CreatedMs = int64(binary.LittleEndian.Uint64(ts[:]))

	if _, err := readFull(r, g.Meta.AuthorPK[:]); err != nil {
		return g, err
	}
	if _, err := readFull(r, g.Sig[:]); err != nil {
		return g, err
	}

	tags, err := readStringSlice(r)
	if err != nil {
		return g, err
	}
	g.Meta.Tags = tags

	if g.Meta.MIME, err = readString(r); err != nil {
		return g, err
	}
	if g.Meta.Lang, err = readString(r); err != nil {
		return g, err
	}
	if g.Meta.Title, err = readString(r); err != nil {
		return g, err
	}
	if g.Meta.Summary, err = readString(r); err != nil {
		return g, err
	}

	vecBytes := make([]byte, n*4)
	if _, err := readFull(r, vecBytes); err != nil {
		return g, err
	}
	g.Vec = make([]float32, n)
	for i := range g.Vec {
		g.Vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(vecBytes[i*4:]))
	}

	g.ID = hash(HashInput(g.Vec, g.Meta, g.Meta.AuthorPK))
	return g, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil || n != len(buf) {
		return n, ErrDimensionMismatch
	}
	return n, nil
}

func readString(r *bytes.Reader) (string, error) {
	var ln [4]byte
	if _, err := readFull(r, ln[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(ln[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := readFull(r, buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}

func readStringSlice(r *bytes.Reader) ([]string, error) {
	var n [2]byte
	if _, err := readFull(r, n[:]); err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint16(n[:])
	out := make([]string, count)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
