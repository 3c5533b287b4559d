package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "empty token", token: ""},
		{name: "opaque token", token: "api-key-123"},
		{name: "valid jwt", token: signToken(t, time.Now().Add(time.Hour))},
		{name: "expired jwt", token: signToken(t, time.Now().Add(-time.Minute)), wantErr: true},
		{name: "malformed jwt", token: "a.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckToken(tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTokenExpired)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	expiresAt := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	got, err := TokenExpiry(signToken(t, expiresAt))
	require.NoError(t, err)
	assert.True(t, expiresAt.Equal(got), "expected %v, got %v", expiresAt, got)

	_, err = TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}
