package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sample struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Tags    []string `json:"tags,omitempty"`
	Payload string   `json:"payload,omitempty"`
}

func compressibleSample() sample {
	return sample{
		Name:    "collection",
		Count:   45,
		Tags:    []string{"generative", "generative", "generative"},
		Payload: strings.Repeat("tezos-nft-gallery ", 200),
	}
}

func TestCodec_RoundTripBelowThreshold(t *testing.T) {
	codec := NewCodec(DefaultCodecConfig(), zap.NewNop())

	in := sample{Name: "tiny", Count: 1}
	encoded, err := codec.Encode(in)
	require.NoError(t, err)
	assert.False(t, encoded.Compressed)
	assert.Equal(t, encoded.OriginalSize, encoded.CompressedSize)

	var out sample
	require.NoError(t, codec.Decode(encoded.Payload, encoded.Compressed, &out))
	assert.Equal(t, in, out)
}

func TestCodec_RoundTripCompressed(t *testing.T) {
	codec := NewCodec(DefaultCodecConfig(), zap.NewNop())

	in := compressibleSample()
	encoded, err := codec.Encode(in)
	require.NoError(t, err)
	assert.True(t, encoded.Compressed)
	assert.Less(t, encoded.CompressedSize, encoded.OriginalSize)
	assert.Less(t, encoded.Ratio, minCompressionGain)

	var out sample
	require.NoError(t, codec.Decode(encoded.Payload, encoded.Compressed, &out))
	assert.Equal(t, in, out)
}

func TestCodec_Disabled(t *testing.T) {
	codec := NewCodec(CodecConfig{Enabled: false}, zap.NewNop())

	encoded, err := codec.Encode(compressibleSample())
	require.NoError(t, err)
	assert.False(t, encoded.Compressed)
}

func TestCodec_DeclinesInsufficientGain(t *testing.T) {
	cfg := DefaultCodecConfig()
	cfg.ThresholdBytes = 16
	codec := NewCodec(cfg, zap.NewNop())

	// Random-looking base58 data barely compresses; the codec must keep
	// the plain form rather than pay decompression on every read.
	in := sample{Name: "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb1RJ6PbjHpwc3M5rw5s2NbmQ"}
	encoded, err := codec.Encode(in)
	require.NoError(t, err)
	assert.False(t, encoded.Compressed)

	var out sample
	require.NoError(t, codec.Decode(encoded.Payload, encoded.Compressed, &out))
	assert.Equal(t, in, out)
}

func TestCodec_SniffsCompressedPayloadWithPlainFlag(t *testing.T) {
	codec := NewCodec(DefaultCodecConfig(), zap.NewNop())

	in := compressibleSample()
	encoded, err := codec.Encode(in)
	require.NoError(t, err)
	require.True(t, encoded.Compressed)

	// A differently-configured reader may believe the entry is plain.
	var out sample
	require.NoError(t, codec.Decode(encoded.Payload, false, &out))
	assert.Equal(t, in, out)
}

func TestCodec_SniffsPlainPayloadWithCompressedFlag(t *testing.T) {
	codec := NewCodec(DefaultCodecConfig(), zap.NewNop())

	in := sample{Name: "plain", Count: 3}
	encoded, err := codec.Encode(in)
	require.NoError(t, err)
	require.False(t, encoded.Compressed)

	var out sample
	require.NoError(t, codec.Decode(encoded.Payload, true, &out))
	assert.Equal(t, in, out)
}

func TestCodec_DecodeGarbage(t *testing.T) {
	codec := NewCodec(DefaultCodecConfig(), zap.NewNop())

	var out sample
	err := codec.Decode("not json, not gzip", false, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecompression)

	err = codec.Decode("bm90IGd6aXA=", true, &out) // valid base64, not gzip
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecompression)
}

func TestCodec_EncodeUnserializable(t *testing.T) {
	codec := NewCodec(DefaultCodecConfig(), zap.NewNop())

	_, err := codec.Encode(make(chan int))
	require.Error(t, err)
}
