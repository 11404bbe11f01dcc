package crypto

import (
	"testing"

	"github.com/synapsenet/node/internal/model"
)

func signedGrain(t *testing.T, dim int) model.Grain {
	t.Helper()
	pub, sk, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	var pk [32]byte
	copy(pk[:], pub)

	vec := make([]float32, dim)
	vec[0] = 1
	meta := model.Meta{CreatedMs: 1700000000000, Tags: []string{"a"}, MIME: "text/plain", Lang: "en"}
	meta.AuthorPK = pk
	id := Hash(model.HashInput(vec, meta, pk))
	sig, err := SignGrainID(sk, id)
	if err != nil {
		t.Fatalf("sign grain id: %v", err)
	}
	return model.Grain{ID: id, Vec: vec, Meta: meta, Sig: sig}
}

func TestSignThenVerify(t *testing.T) {
	g := signedGrain(t, 4)
	if !VerifyGrainID(g.Meta.AuthorPK, g.ID, g.Sig) {
		t.Fatal("expected sign-then-verify to hold")
	}
}

func TestValidate_AcceptsWellFormedGrain(t *testing.T) {
	g := signedGrain(t, 4)
	if err := Validate(g, 4); err != nil {
		t.Fatalf("expected valid grain, got %v", err)
	}
}

func TestValidate_RejectsDimensionMismatch(t *testing.T) {
	g := signedGrain(t, 4)
	if err := Validate(g, 8); err != model.ErrDimensionMismatch {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestValidate_RejectsNonFiniteVector(t *testing.T) {
	g := signedGrain(t, 4)
	var zero float32
	g.Vec[0] = 1 / zero // +Inf
	if err := Validate(g, 4); err != model.ErrNonFiniteVector {
		t.Fatalf("expected ErrNonFiniteVector, got %v", err)
	}
}

func TestValidate_RejectsTamperedField(t *testing.T) {
	g := signedGrain(t, 4)
	g.Meta.Title = "tampered"
	if err := Validate(g, 4); err != model.ErrBadSignature {
		t.Fatalf("expected ErrBadSignature after tampering with a hashed field, got %v", err)
	}
}

func TestValidate_RejectsForgedSignature(t *testing.T) {
	g := signedGrain(t, 4)
	other := signedGrain(t, 4)
	g.Sig = other.Sig
	if err := Validate(g, 4); err != model.ErrBadSignature {
		t.Fatalf("expected ErrBadSignature for a signature from a different key, got %v", err)
	}
}

func TestHashDeterminism(t *testing.T) {
	var pk [32]byte
	pk[3] = 5
	vec := []float32{1, 0, 0, 0}
	meta := model.Meta{CreatedMs: 42, Tags: []string{"x", "y"}}

	a := Hash(model.HashInput(vec, meta, pk))
	b := Hash(model.HashInput(vec, meta, pk))
	if a != b {
		t.Fatal("expected identical fields to hash identically")
	}

	meta2 := meta
	meta2.Title = "different"
	c := Hash(model.HashInput(vec, meta2, pk))
	if a == c {
		t.Fatal("expected a changed field to change the hash")
	}
}

func TestValidateLink_RejectsWeightOutOfRange(t *testing.T) {
	pub, sk, _ := GenerateKeyPair()
	var pk [32]byte
	copy(pk[:], pub)
	var from, to [32]byte
	from[0], to[0] = 1, 2

	l := model.Link{FromID: from, ToID: to, Weight: 1.5, AuthorPK: pk, CreatedMs: 1}
	l.ID = Hash(model.LinkHashInput(l.FromID, l.ToID, l.Weight, l.Rationale, pk, l.CreatedMs))
	l.Sig, _ = SignGrainID(sk, l.ID)

	if err := ValidateLink(l); err != model.ErrWeightOutOfRange {
		t.Fatalf("expected ErrWeightOutOfRange, got %v", err)
	}
}

func TestValidateLink_AcceptsWellFormedLink(t *testing.T) {
	pub, sk, _ := GenerateKeyPair()
	var pk [32]byte
	copy(pk[:], pub)
	var from, to [32]byte
	from[0], to[0] = 1, 2

	l := model.Link{FromID: from, ToID: to, Weight: 0.5, Rationale: "cites", AuthorPK: pk, CreatedMs: 7}
	l.ID = Hash(model.LinkHashInput(l.FromID, l.ToID, l.Weight, l.Rationale, pk, l.CreatedMs))
	l.Sig, _ = SignGrainID(sk, l.ID)

	if err := ValidateLink(l); err != nil {
		t.Fatalf("expected valid link, got %v", err)
	}
}
