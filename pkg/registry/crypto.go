package registry

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// KeyStore resolves a keyid to a trusted ed25519 public key for
// manifest signature verification.
type KeyStore interface {
	PublicKey(keyID string) (ed25519.PublicKey, bool)
}

// StaticKeyStore is a fixed, in-memory set of trusted signing keys.
type StaticKeyStore struct {
	keys map[string]ed25519.PublicKey
}

// NewStaticKeyStore builds a KeyStore from a keyid -> public key map.
func NewStaticKeyStore(keys map[string]ed25519.PublicKey) *StaticKeyStore {
	return &StaticKeyStore{keys: keys}
}

func (s *StaticKeyStore) PublicKey(keyID string) (ed25519.PublicKey, bool) {
	k, ok := s.keys[keyID]
	return k, ok
}

// VerifySignature checks a hex-encoded ed25519 signature over message
// using the key named by keyID.
func VerifySignature(ks KeyStore, keyID string, message []byte, signatureHex string) error {
	pub, ok := ks.PublicKey(keyID)
	if !ok {
		return fmt.Errorf("registry: unknown signing key %q", keyID)
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("registry: malformed signature: %w", err)
	}
	if !ed25519.Verify(pub, message, sig) {
		return fmt.Errorf("registry: signature verification failed for key %q", keyID)
	}
	return nil
}
