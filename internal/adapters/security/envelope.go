package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/skillforge/marketplace/internal/domain"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// Envelope wraps per-skill DEKs under a process-wide KEK and encrypts rule
// plaintext under the DEK. Wire layout for both envelopes is
// iv(12) || tag(16) || ciphertext.
type Envelope struct {
	kek []byte
}

func NewEnvelope(kek []byte) (*Envelope, error) {
	if len(kek) != keySize {
		return nil, fmt.Errorf("kek must be %d bytes, got %d", keySize, len(kek))
	}
	held := make([]byte, keySize)
	copy(held, kek)
	return &Envelope{kek: held}, nil
}

func (e *Envelope) GenerateDEK() ([]byte, error) {
	dek := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("generate dek: %w", err)
	}
	return dek, nil
}

func (e *Envelope) WrapDEK(dek []byte) ([]byte, error) {
	return seal(e.kek, dek)
}

func (e *Envelope) UnwrapDEK(wrapped []byte) ([]byte, error) {
	return open(e.kek, wrapped)
}

func (e *Envelope) EncryptKnowledge(plaintext, dek []byte) ([]byte, error) {
	return seal(dek, plaintext)
}

func (e *Envelope) DecryptKnowledge(envelope, dek []byte) ([]byte, error) {
	return open(dek, envelope)
}

func seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

func open(key, envelope []byte) ([]byte, error) {
	if len(envelope) < nonceSize+tagSize {
		return nil, domain.ErrCryptoAuthFailure
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := envelope[:nonceSize]
	tag := envelope[nonceSize : nonceSize+tagSize]
	ct := envelope[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, domain.ErrCryptoAuthFailure
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
