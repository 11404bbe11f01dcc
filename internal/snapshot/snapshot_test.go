package snapshot

import (
	"bytes"
	"testing"

	"github.com/synapsenet/node/internal/crypto"
	"github.com/synapsenet/node/internal/model"
)

type fakeSource struct {
	grains []model.Grain
}

func (f *fakeSource) IterGrains(fn func(model.Grain) error) error {
	for _, g := range f.grains {
		if err := fn(g); err != nil {
			return err
		}
	}
	return nil
}

type fakeSink struct {
	put []model.Grain
}

func (f *fakeSink) PutGrain(g model.Grain) error {
	f.put = append(f.put, g)
	return nil
}

type fakeIndexer struct {
	inserted int
}

func (f *fakeIndexer) Insert(id [32]byte, vec []float32) error {
	f.inserted++
	return nil
}

func makeGrain(t *testing.T, text byte) model.Grain {
	t.Helper()
	pub, sk, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	var pk [32]byte
	copy(pk[:], pub)

	vec := []float32{1, 0, 0, 0}
	meta := model.Meta{AuthorPK: pk, CreatedMs: 1000, Tags: []string{"t"}, MIME: "text/plain"}
	id := crypto.Hash(model.HashInput(vec, meta, pk))
	sig, err := crypto.SignGrainID(sk, id)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return model.Grain{ID: id, Vec: vec, Meta: meta, Sig: sig}
}

func TestExportImport_RoundTrip(t *testing.T) {
	g := makeGrain(t, 'a')
	src := &fakeSource{grains: []model.Grain{g}}

	var buf bytes.Buffer
	n, err := Export(src, &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 exported row, got %d", n)
	}

	sink := &fakeSink{}
	idx := &fakeIndexer{}
	res, err := Import(&buf, 4, sink, idx)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Accepted != 1 || res.Rejected != 0 {
		t.Fatalf("expected 1 accepted 0 rejected, got %+v", res)
	}
	if len(sink.put) != 1 || sink.put[0].ID != g.ID {
		t.Fatalf("expected grain committed to sink")
	}
	if idx.inserted != 1 {
		t.Fatalf("expected 1 index insert, got %d", idx.inserted)
	}
}

func TestImport_RejectsTamperedRowWithoutAborting(t *testing.T) {
	good := makeGrain(t, 'a')
	tampered := makeGrain(t, 'b')
	tampered.Vec[0] = 0.5 // breaks the signature without changing length

	var buf bytes.Buffer
	if _, err := Export(&fakeSource{grains: []model.Grain{good, tampered}}, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	sink := &fakeSink{}
	idx := &fakeIndexer{}
	res, err := Import(&buf, 4, sink, idx)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Accepted != 1 || res.Rejected != 1 {
		t.Fatalf("expected 1 accepted 1 rejected, got %+v", res)
	}
}

func TestImport_RejectsDimensionMismatch(t *testing.T) {
	g := makeGrain(t, 'a')

	var buf bytes.Buffer
	if _, err := Export(&fakeSource{grains: []model.Grain{g}}, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	sink := &fakeSink{}
	idx := &fakeIndexer{}
	res, err := Import(&buf, 8, sink, idx) // node configured for dim 8, grain is dim 4
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Accepted != 0 || res.Rejected != 1 {
		t.Fatalf("expected rejection on dimension mismatch, got %+v", res)
	}
}
