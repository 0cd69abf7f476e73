package safe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionRoundTrip(t *testing.T) {
	tests := []struct {
		name           string
		opts           CompressionOptions
		content        []byte
		wantCompressed bool
	}{
		{
			name:           "below minimum",
			opts:           CompressionOptions{MinSize: 1024, Level: 2, StreamingThreshold: 1 << 20},
			content:        []byte("tiny"),
			wantCompressed: false,
		},
		{
			name:           "single shot",
			opts:           CompressionOptions{MinSize: 16, Level: 1, StreamingThreshold: 1 << 20},
			content:        bytes.Repeat([]byte("abc"), 500),
			wantCompressed: true,
		},
		{
			name:           "streaming",
			opts:           CompressionOptions{MinSize: 16, Level: 4, StreamingThreshold: 64},
			content:        bytes.Repeat([]byte("xyz"), 500),
			wantCompressed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm, err := newCompressionManager(tt.opts)
			require.NoError(t, err)
			defer cm.close()

			out, compressed, err := cm.compress(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCompressed, compressed)

			back, err := cm.decompress(out)
			require.NoError(t, err)
			assert.Equal(t, tt.content, back)
		})
	}
}

func TestCompressionRejectsBadLevel(t *testing.T) {
	_, err := newCompressionManager(CompressionOptions{Level: 9})
	assert.Error(t, err)
}
