package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCodec(t *testing.T) {
	for _, c := range []Codec{VP9, VP8, GIF} {
		got, err := ParseCodec(c.Name)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCodec(" VP9 ")
	require.NoError(t, err)
	assert.Equal(t, VP9, got)

	_, err = ParseCodec("h264")
	assert.Error(t, err)
}

func TestNegotiate(t *testing.T) {
	codec, err := Negotiate(newFakeEncoder(VP8), DefaultCodecs)
	require.NoError(t, err)
	assert.Equal(t, VP8, codec)

	_, err = Negotiate(newFakeEncoder(GIF), DefaultCodecs)
	assert.ErrorIs(t, err, ErrNoEncoder)
}

func TestChain(t *testing.T) {
	webm := newFakeEncoder(VP9)
	gif := newFakeEncoder(GIF)
	enc := Chain(webm, gif)

	assert.True(t, enc.Supports(VP9))
	assert.True(t, enc.Supports(GIF))
	assert.False(t, enc.Supports(VP8))

	codec, err := Negotiate(enc, []Codec{VP9, VP8, GIF})
	require.NoError(t, err)
	assert.Equal(t, VP9, codec)

	_, err = enc.Open(context.Background(), StreamConfig{Width: 1, Height: 1, FPS: 1, Codec: GIF})
	require.NoError(t, err)
	assert.Len(t, gif.sessions, 1)
	assert.Empty(t, webm.sessions)

	_, err = enc.Open(context.Background(), StreamConfig{Codec: VP8})
	assert.ErrorIs(t, err, ErrNoEncoder)
}
