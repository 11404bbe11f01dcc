package crypto

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
)

const (
	privateKeyFileName = "node.key"
	publicKeyFileName  = "node.pub"
	keyFileMode        = 0600
)

// FileKeyProvider is the default on-disk KeyProvider (§6): it reads
// node.key/node.pub from a node's data directory, generating a fresh pair
// on first use.
type FileKeyProvider struct {
	pub [32]byte
	sk  ed25519.PrivateKey
}

// LoadOrCreateFileKeyProvider opens dataDir/node.key and dataDir/node.pub,
// creating a fresh Ed25519 key pair and writing both files if they don't
// exist yet.
func LoadOrCreateFileKeyProvider(dataDir string) (*FileKeyProvider, error) {
	skPath := filepath.Join(dataDir, privateKeyFileName)
	pkPath := filepath.Join(dataDir, publicKeyFileName)

	if _, err := os.Stat(skPath); os.IsNotExist(err) {
		pub, sk, err := GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("crypto: generate key pair: %w", err)
		}
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("crypto: create data dir: %w", err)
		}
		if err := os.WriteFile(skPath, sk, keyFileMode); err != nil {
			return nil, fmt.Errorf("crypto: write %s: %w", privateKeyFileName, err)
		}
		if err := os.WriteFile(pkPath, pub, keyFileMode); err != nil {
			return nil, fmt.Errorf("crypto: write %s: %w", publicKeyFileName, err)
		}
	}

	skBytes, err := os.ReadFile(skPath)
	if err != nil {
		return nil, fmt.Errorf("crypto: read %s: %w", privateKeyFileName, err)
	}
	if len(skBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: %s has wrong size %d", privateKeyFileName, len(skBytes))
	}
	pubBytes, err := os.ReadFile(pkPath)
	if err != nil {
		return nil, fmt.Errorf("crypto: read %s: %w", publicKeyFileName, err)
	}
	if len(pubBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: %s has wrong size %d", publicKeyFileName, len(pubBytes))
	}

	var pk [32]byte
	copy(pk[:], pubBytes)
	return &FileKeyProvider{pub: pk, sk: ed25519.PrivateKey(skBytes)}, nil
}

func (f *FileKeyProvider) PublicKey() [32]byte { return f.pub }

func (f *FileKeyProvider) Sign(msg []byte) ([64]byte, error) {
	return Sign(f.sk, msg)
}
