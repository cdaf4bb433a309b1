// Package crypt provides the end-to-end encryption capability used by the
// routing chat and attachment channel. The core treats ciphertext opaquely;
// this package is the only place that touches keys.
package crypt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Encryptor seals and opens payloads between a sender and a recipient.
// Injected at construction so the routing channel never embeds plaintext in
// persisted documents.
type Encryptor interface {
	Seal(senderID, recipientID int, plaintext []byte) (string, error)
	Open(senderID, recipientID int, ciphertext string) ([]byte, error)
}

// PairBox derives one symmetric key per participant pair from a master secret
// (HKDF-SHA256) and encrypts with ChaCha20-Poly1305. Both participants of a
// pair can open, which is what the two-party routing channel needs.
type PairBox struct {
	master []byte
}

func NewPairBox(masterSecret string) *PairBox {
	return &PairBox{master: []byte(masterSecret)}
}

func (b *PairBox) pairKey(a, bID int) ([]byte, error) {
	lo, hi := a, bID
	if lo > hi {
		lo, hi = hi, lo
	}
	info := fmt.Sprintf("avini-routing-channel:%d:%d", lo, hi)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, b.master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive pair key: %w", err)
	}
	return key, nil
}

func (b *PairBox) Seal(senderID, recipientID int, plaintext []byte) (string, error) {
	key, err := b.pairKey(senderID, recipientID)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *PairBox) Open(senderID, recipientID int, ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	key, err := b.pairKey(senderID, recipientID)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plaintext, nil
}
