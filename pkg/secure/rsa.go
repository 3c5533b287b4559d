package secure

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// pkcs1v15Overhead is the padding PKCS#1 v1.5 adds to every encrypted block.
const pkcs1v15Overhead = 11

// ErrChunkTooLarge is returned when a plaintext exceeds what one RSA block can hold.
var ErrChunkTooLarge = errors.New("plaintext exceeds RSA block size")

// KeySource provides the server's public key.
type KeySource interface {
	PublicKey(ctx context.Context) (*rsa.PublicKey, error)
}

// KeySourceFunc adapts a function to KeySource.
type KeySourceFunc func(ctx context.Context) (*rsa.PublicKey, error)

func (f KeySourceFunc) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	return f(ctx)
}

// RSAEncoder encrypts input chunks with the server's RSA public key using
// PKCS#1 v1.5 padding and returns base64 ciphertext. The key is fetched on
// first use and cached; a failed fetch is retried on the next call.
type RSAEncoder struct {
	source KeySource
	random io.Reader

	mu  sync.Mutex
	key *rsa.PublicKey
}

// NewRSAEncoder creates an encoder that fetches its key from source.
func NewRSAEncoder(source KeySource) *RSAEncoder {
	return &RSAEncoder{
		source: source,
		random: rand.Reader,
	}
}

// Encode encrypts plaintext. It fails with ErrChunkTooLarge if plaintext is
// longer than MaxPlaintext of the server key.
func (e *RSAEncoder) Encode(ctx context.Context, plaintext []byte) (string, error) {
	key, err := e.publicKey(ctx)
	if err != nil {
		return "", err
	}

	if limit := MaxPlaintext(key); len(plaintext) > limit {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrChunkTooLarge, len(plaintext), limit)
	}

	ciphertext, err := rsa.EncryptPKCS1v15(e.random, key, plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt input: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// ChunkSize returns the largest plaintext a single Encode call accepts.
func (e *RSAEncoder) ChunkSize(ctx context.Context) (int, error) {
	key, err := e.publicKey(ctx)
	if err != nil {
		return 0, err
	}
	return MaxPlaintext(key), nil
}

func (e *RSAEncoder) publicKey(ctx context.Context) (*rsa.PublicKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.key != nil {
		return e.key, nil
	}

	key, err := e.source.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get server public key: %w", err)
	}
	if key == nil {
		return nil, errors.New("server returned no public key")
	}

	log.Debug().Int("bits", key.N.BitLen()).Msg("Cached server public key")
	e.key = key
	return key, nil
}

// MaxPlaintext returns the PKCS#1 v1.5 payload limit for key, 117 bytes for
// a 1024-bit key.
func MaxPlaintext(key *rsa.PublicKey) int {
	return key.Size() - pkcs1v15Overhead
}

// ParsePublicKey decodes a PEM encoded RSA public key in PKIX ("PUBLIC KEY")
// or PKCS#1 ("RSA PUBLIC KEY") form.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#1 public key: %w", err)
		}
		return key, nil
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKIX public key: %w", err)
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("unexpected public key type %T", parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
}

// EncodePublicKey returns key as a PKIX PEM block.
func EncodePublicKey(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
