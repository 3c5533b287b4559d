// Package secure provides the encoders applied to terminal input before it
// leaves the client.
package secure

import (
	"context"
	"fmt"
	"strings"

	"rterm/pkg/terminal"
)

// Mode selects an input encoder.
type Mode string

const (
	// ModeRSA encrypts input with the server's RSA public key.
	ModeRSA Mode = "rsa"
	// ModeNone sends input as-is, for servers without input encryption.
	ModeNone Mode = "none"
)

// ParseMode parses a configured mode name. An empty name selects ModeRSA.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRSA:
		return ModeRSA, nil
	case ModeNone:
		return ModeNone, nil
	default:
		return "", fmt.Errorf("unsupported secure mode %q (must be rsa or none)", s)
	}
}

// Passthrough is an encoder that does not transform input.
type Passthrough struct{}

func (Passthrough) Encode(ctx context.Context, plaintext []byte) (string, error) {
	return string(plaintext), nil
}

// ChunkSize returns terminal.DefaultChunkSize.
func (Passthrough) ChunkSize(ctx context.Context) (int, error) {
	return terminal.DefaultChunkSize, nil
}

// Encoder is a terminal.Encoder that knows its largest accepted chunk.
type Encoder interface {
	terminal.Encoder
	ChunkSize(ctx context.Context) (int, error)
}

// New returns the encoder for mode. source is only used by ModeRSA.
func New(mode Mode, source KeySource) (Encoder, error) {
	switch mode {
	case ModeRSA:
		if source == nil {
			return nil, fmt.Errorf("rsa mode requires a key source")
		}
		return NewRSAEncoder(source), nil
	case ModeNone:
		return Passthrough{}, nil
	default:
		return nil, fmt.Errorf("unsupported secure mode %q", mode)
	}
}
