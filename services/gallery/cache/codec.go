package cache

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrDecompression marks a payload that could not be parsed after
// decompression. Transport-level problems (bad base64, bad gzip stream) are
// recovered by sniffing; a post-decompression parse failure is not.
var ErrDecompression = errors.New("cache: decompression failed")

// Compression is declined when it saves less than 10%.
const minCompressionGain = 0.9

type CodecConfig struct {
	Enabled        bool `json:"enabled"`
	ThresholdBytes int  `json:"thresholdBytes" validate:"gte=0"`
	Level          int  `json:"level" validate:"gte=-1,lte=9"`
}

func DefaultCodecConfig() CodecConfig {
	return CodecConfig{
		Enabled:        true,
		ThresholdBytes: 1024,
		Level:          gzip.DefaultCompression,
	}
}

// Encoded is the result of one Encode call. Payload is either the plain
// canonical JSON string or a base64-wrapped gzip stream, per Compressed.
type Encoded struct {
	Payload        string
	Compressed     bool
	OriginalSize   int
	CompressedSize int
	Ratio          float64
}

// Codec serializes cache values and conditionally gzip-compresses them.
// Compression failure never blocks a write; the codec falls back to the
// plain serialized form.
type Codec struct {
	cfg    CodecConfig
	logger *zap.Logger
}

func NewCodec(cfg CodecConfig, logger *zap.Logger) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{
		cfg:    cfg,
		logger: logger.Named("codec"),
	}
}

func (c *Codec) Encode(value any) (Encoded, error) {
	serialized, err := json.Marshal(value)
	if err != nil {
		return Encoded{}, errors.Wrap(err, "cache: serialize value")
	}

	plain := Encoded{
		Payload:        string(serialized),
		OriginalSize:   len(serialized),
		CompressedSize: len(serialized),
		Ratio:          1,
	}

	if !c.cfg.Enabled || len(serialized) < c.cfg.ThresholdBytes {
		return plain, nil
	}

	compressed, err := c.gzipCompress(serialized)
	if err != nil {
		c.logger.Warn("compression failed, storing plain", zap.Error(err))
		return plain, nil
	}

	ratio := float64(len(compressed)) / float64(len(serialized))
	if ratio > minCompressionGain {
		// Not worth the CPU on the read path.
		return plain, nil
	}

	return Encoded{
		Payload:        base64.StdEncoding.EncodeToString(compressed),
		Compressed:     true,
		OriginalSize:   len(serialized),
		CompressedSize: len(compressed),
		Ratio:          ratio,
	}, nil
}

// Decode reverses Encode. The compressed flag is advisory: a payload
// written by a differently-configured instance is detected by attempting
// the other representation before giving up, so a reader never hard-fails
// just because it cannot know statically whether a payload was compressed.
func (c *Codec) Decode(payload string, compressed bool, out any) error {
	if compressed {
		serialized, err := c.gzipDecompress(payload)
		if err != nil {
			// Flag says compressed but the stream disagrees, try plain.
			if plainErr := json.Unmarshal([]byte(payload), out); plainErr == nil {
				return nil
			}
			return errors.Wrap(ErrDecompression, err.Error())
		}
		if err := json.Unmarshal(serialized, out); err != nil {
			return errors.Wrap(ErrDecompression, err.Error())
		}
		return nil
	}

	if err := json.Unmarshal([]byte(payload), out); err == nil {
		return nil
	}

	// Flag says plain but parsing failed, try the compressed representation.
	serialized, err := c.gzipDecompress(payload)
	if err != nil {
		return errors.Wrap(ErrDecompression, "payload is neither plain JSON nor a gzip stream")
	}
	if err := json.Unmarshal(serialized, out); err != nil {
		return errors.Wrap(ErrDecompression, err.Error())
	}
	return nil
}

func (c *Codec) gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, c.cfg.Level)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) gzipDecompress(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
