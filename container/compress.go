package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec enumerates per-dataset chunk compression codecs.
type Codec uint8

const (
	// CodecNone stores chunks uncompressed.
	CodecNone Codec = 0
	// CodecZstd compresses chunks with zstd. This is the default.
	CodecZstd Codec = 1
	// CodecLZ4 compresses chunks with the LZ4 frame format.
	CodecLZ4 Codec = 2
)

// ErrUnknownCodec is returned when a chunk references a codec this build
// does not know.
var ErrUnknownCodec = errors.New("container: unknown chunk codec")

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

func (c Codec) valid() bool {
	return c <= CodecLZ4
}

// Shared zstd coders. EncodeAll/DecodeAll on these are safe for concurrent
// use, so one pair serves all files.
var (
	zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

func compress(c Codec, raw []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return raw, nil
	case CodecZstd:
		return zstdEnc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	case CodecLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, ErrUnknownCodec
	}
}

func decompress(c Codec, comp []byte, rawLen int) ([]byte, error) {
	switch c {
	case CodecNone:
		return comp, nil
	case CodecZstd:
		raw, err := zstdDec.DecodeAll(comp, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupted, err)
		}
		return raw, nil
	case CodecLZ4:
		zr := lz4.NewReader(bytes.NewReader(comp))
		raw := make([]byte, rawLen)
		if _, err := io.ReadFull(zr, raw); err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupted, err)
		}
		return raw, nil
	default:
		return nil, ErrUnknownCodec
	}
}
