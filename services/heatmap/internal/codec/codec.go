// Package codec serializes heatmap operands for transport between reduction
// levels and for caching.
//
// A payload is a one-byte header followed by a JSON envelope, optionally zstd
// lz4 or s2 compressed. The envelope keeps the leaf/combined distinction so a decoded
// operand is weighted correctly by playback.Combine.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
)

// ErrInvalidPayload is returned for payloads that cannot be decoded into a
// well-formed operand.
var ErrInvalidPayload = errors.New("codec: invalid payload")

const (
	KindLeaf     = "leaf"
	KindCombined = "combined"
)

// Compression selects the payload compression; its value is the header byte.
type Compression byte

const (
	None Compression = iota
	Zstd
	LZ4
	S2
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	case S2:
		return "s2"
	}
	return fmt.Sprintf("compression(%d)", byte(c))
}

const maxDecodedBytes = 32 << 20

type envelope struct {
	Kind      string              `json:"kind"`
	Intervals []playback.Interval `json:"intervals,omitempty"`
	Borders   []float64           `json:"borders,omitempty"`
	Heatmap   []int64             `json:"heatmap,omitempty"`
}

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedBytes))
	})
)

// Encode serializes op. With compress set the JSON body is zstd compressed.
func Encode(op playback.Operand, compress bool) ([]byte, error) {
	if compress {
		return EncodeWith(op, Zstd)
	}
	return EncodeWith(op, None)
}

// EncodeWith serializes op using compression c.
func EncodeWith(op playback.Operand, c Compression) ([]byte, error) {
	var env envelope
	switch v := op.(type) {
	case playback.Sequence:
		env = envelope{Kind: KindLeaf, Intervals: v}
	case playback.Histogram:
		env = envelope{Kind: KindCombined, Borders: v.Boundaries, Heatmap: v.Counts}
	default:
		return nil, fmt.Errorf("codec: unsupported operand %T", op)
	}

	body, err := sonic.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	switch c {
	case None:
		return append([]byte{byte(None)}, body...), nil
	case Zstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("codec: zstd encoder: %w", err)
		}
		out := make([]byte, 1, len(body)/2+1)
		out[0] = byte(Zstd)
		return enc.EncodeAll(body, out), nil
	case LZ4:
		var buf bytes.Buffer
		buf.WriteByte(byte(LZ4))
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, fmt.Errorf("codec: lz4: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("codec: lz4: %w", err)
		}
		return buf.Bytes(), nil
	case S2:
		return append([]byte{byte(S2)}, s2.Encode(nil, body)...), nil
	default:
		return nil, fmt.Errorf("codec: unsupported compression %s", c)
	}
}

// Decode parses a payload produced by Encode and validates the operand.
func Decode(data []byte) (playback.Operand, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}

	body := data[1:]
	switch Compression(data[0]) {
	case None:
	case Zstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("codec: zstd decoder: %w", err)
		}
		body, err = dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	case LZ4:
		var err error
		body, err = io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(body)), maxDecodedBytes+1))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if len(body) > maxDecodedBytes {
			return nil, fmt.Errorf("%w: decoded payload too large", ErrInvalidPayload)
		}
	case S2:
		n, err := s2.DecodedLen(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if n > maxDecodedBytes {
			return nil, fmt.Errorf("%w: decoded payload too large", ErrInvalidPayload)
		}
		body, err = s2.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown header %#x", ErrInvalidPayload, data[0])
	}

	var env envelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch env.Kind {
	case KindLeaf:
		seq := playback.Sequence(env.Intervals)
		if err := seq.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return seq, nil
	case KindCombined:
		h := playback.Histogram{Boundaries: env.Borders, Counts: env.Heatmap}
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, env.Kind)
	}
}

// DecodeHistogram decodes a payload that must hold a combined histogram.
func DecodeHistogram(data []byte) (playback.Histogram, error) {
	op, err := Decode(data)
	if err != nil {
		return playback.Histogram{}, err
	}
	h, ok := op.(playback.Histogram)
	if !ok {
		return playback.Histogram{}, fmt.Errorf("%w: expected %s payload", ErrInvalidPayload, KindCombined)
	}
	return h, nil
}
