package machine

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// KeyManager owns the key pair injected into every guest image.
// The public key is part of an image's provenance: an image built with
// another key is stale.
type KeyManager struct {
	dir string
}

// NewKeyManager creates a key manager storing keys in {dataDir}/ssh/.
func NewKeyManager(dataDir string) *KeyManager {
	return &KeyManager{dir: filepath.Join(dataDir, "ssh")}
}

func (m *KeyManager) privateKeyPath() string {
	return filepath.Join(m.dir, "perftune")
}

func (m *KeyManager) publicKeyPath() string {
	return filepath.Join(m.dir, "perftune.pub")
}

// EnsureKeyPair generates an ed25519 key pair unless one exists.
func (m *KeyManager) EnsureKeyPair() (privateKeyPath, publicKeyPath string, err error) {
	privPath := m.privateKeyPath()
	pubPath := m.publicKeyPath()
	if m.KeyPairExists() {
		return privPath, pubPath, nil
	}

	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return "", "", fmt.Errorf("create ssh directory: %w", err)
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(privKey, "perftune guest key")
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(privPath, pem.EncodeToMemory(block), 0600); err != nil {
		return "", "", fmt.Errorf("write private key: %w", err)
	}

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		os.Remove(privPath)
		return "", "", fmt.Errorf("convert public key: %w", err)
	}
	authorized := strings.TrimSuffix(string(ssh.MarshalAuthorizedKey(sshPubKey)), "\n")
	if err := os.WriteFile(pubPath, []byte(authorized+" perftune@perftune\n"), 0644); err != nil {
		os.Remove(privPath)
		return "", "", fmt.Errorf("write public key: %w", err)
	}

	return privPath, pubPath, nil
}

// KeyPairExists returns true if both keys exist.
func (m *KeyManager) KeyPairExists() bool {
	_, privErr := os.Stat(m.privateKeyPath())
	_, pubErr := os.Stat(m.publicKeyPath())
	return privErr == nil && pubErr == nil
}

// PrivateKeyPath returns the private key path, or an error before keygen.
func (m *KeyManager) PrivateKeyPath() (string, error) {
	path := m.privateKeyPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("guest key not generated; run 'perftune keygen' first")
		}
		return "", err
	}
	return path, nil
}

// PublicKey returns the authorized_keys line without the trailing newline.
func (m *KeyManager) PublicKey() (string, error) {
	content, err := os.ReadFile(m.publicKeyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("guest key not generated; run 'perftune keygen' first")
		}
		return "", err
	}
	return strings.TrimSuffix(string(content), "\n"), nil
}
