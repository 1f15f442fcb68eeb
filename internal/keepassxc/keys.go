package keepassxc

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	keySize   = 32
	nonceSize = 24
)

// GenerateKeyPair returns a new base64 encoded Curve25519 keypair. It is used
// for the permanent association key stored per database.
func GenerateKeyPair() (publicKey, secretKey string, err error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate keypair: %w", err)
	}
	return encodeKey(pub), encodeKey(sec), nil
}

// PublicKeyFor derives the base64 public key of a base64 secret key.
func PublicKeyFor(secretKey string) (string, error) {
	sec, err := decodeKey(secretKey)
	if err != nil {
		return "", err
	}
	pub, err := curve25519.X25519(sec[:], curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("derive public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

func encodeKey(k *[keySize]byte) string {
	return base64.StdEncoding.EncodeToString(k[:])
}

func decodeKey(s string) (*[keySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("decode key: got %d bytes, want %d", len(raw), keySize)
	}
	var k [keySize]byte
	copy(k[:], raw)
	return &k, nil
}

func newNonce() (*[nonceSize]byte, error) {
	var n [nonceSize]byte
	if _, err := rand.Read(n[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return &n, nil
}

// incrementNonce treats the nonce as a little-endian counter and adds one,
// matching sodium_increment. KeePassXC replies with the incremented request nonce.
func incrementNonce(n [nonceSize]byte) [nonceSize]byte {
	carry := uint16(1)
	for i := range n {
		carry += uint16(n[i])
		n[i] = byte(carry)
		carry >>= 8
	}
	return n
}

func encodeNonce(n *[nonceSize]byte) string {
	return base64.StdEncoding.EncodeToString(n[:])
}

func decodeNonce(s string) (*[nonceSize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	if len(raw) != nonceSize {
		return nil, fmt.Errorf("decode nonce: got %d bytes, want %d", len(raw), nonceSize)
	}
	var n [nonceSize]byte
	copy(n[:], raw)
	return &n, nil
}
