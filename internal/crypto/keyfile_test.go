package crypto

import "testing"

func TestLoadOrCreateFileKeyProvider_CreatesAndReloads(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateFileKeyProvider(dir)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	sig, err := first.Sign([]byte("hello"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(first.PublicKey(), []byte("hello"), sig) {
		t.Fatal("expected signature to verify")
	}

	second, err := LoadOrCreateFileKeyProvider(dir)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second.PublicKey() != first.PublicKey() {
		t.Fatal("expected reload to return the same key pair")
	}
}
