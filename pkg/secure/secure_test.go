package secure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rterm/pkg/terminal"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{input: "", want: ModeRSA},
		{input: "rsa", want: ModeRSA},
		{input: " RSA ", want: ModeRSA},
		{input: "none", want: ModeNone},
		{input: "aes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	enc, err := New(ModeNone, nil)
	require.NoError(t, err)

	out, err := enc.Encode(context.Background(), []byte("ls -la\n"))
	require.NoError(t, err)
	assert.Equal(t, "ls -la\n", out)

	size, err := enc.ChunkSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, terminal.DefaultChunkSize, size)

	_, err = New(ModeRSA, nil)
	assert.Error(t, err)

	_, err = New(Mode("bogus"), nil)
	assert.Error(t, err)
}
