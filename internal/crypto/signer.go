// Package crypto adapts Ed25519 signing/verification for the graph
// store: a Signer produces signatures over arbitrary byte blobs and
// exposes its raw verifying key; Verify checks a signature against an
// externally supplied key, with no PKI or certificate validation.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeyLength is returned when a key blob cannot possibly
	// be an Ed25519 key.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length")
	// ErrVerification is returned when a signature does not match.
	ErrVerification = errors.New("crypto: signature verification failed")
)

// Signer signs byte blobs with a single Ed25519 keypair and exposes
// the raw verifying (public) key.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	VerifyingKey() []byte
}

type ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  []byte
}

// GenerateSigner creates a new random Ed25519 keypair.
func GenerateSigner() (Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &ed25519Signer{priv: priv, pub: []byte(pub)}, nil
}

// NewSigner rebuilds a Signer from a 32-byte Ed25519 seed.
func NewSigner(seed []byte) (Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKeyLength, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &ed25519Signer{priv: priv, pub: []byte(pub)}, nil
}

func (s *ed25519Signer) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, payload), nil
}

func (s *ed25519Signer) VerifyingKey() []byte {
	out := make([]byte, len(s.pub))
	copy(out, s.pub)
	return out
}

// Verify checks sig over payload using verifyingKey.
func Verify(verifyingKey, payload, sig []byte) error {
	if len(verifyingKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKeyLength, ed25519.PublicKeySize, len(verifyingKey))
	}
	if !ed25519.Verify(ed25519.PublicKey(verifyingKey), payload, sig) {
		return ErrVerification
	}
	return nil
}
