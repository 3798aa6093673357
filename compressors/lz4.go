package compressors

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/INLOpen/nexuslog/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements core.Compressor using the LZ4 block format. The
// block format does not record the uncompressed size, so Compress prefixes
// the output with a varint length plus a one-byte flag that says whether the
// payload is an LZ4 block or raw passthrough bytes.
type LZ4Compressor struct{}

const (
	lz4BlockRaw        = 0x00
	lz4BlockCompressed = 0x01
)

type lz4ReadCloser struct {
	*bytes.Reader
}

func (l *lz4ReadCloser) Close() error { return nil }

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	header := binary.AppendUvarint(nil, uint64(len(data)))
	dst := make([]byte, len(header)+1+lz4.CompressBlockBound(len(data)))
	copy(dst, header)

	n, err := lz4.CompressBlock(data, dst[len(header)+1:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 {
		// Incompressible input: CompressBlock signals this with n == 0.
		// Store the raw bytes instead, flagged so Decompress never has to
		// guess from payload length.
		out := append(header, lz4BlockRaw)
		return append(out, data...), nil
	}
	dst[len(header)] = lz4BlockCompressed
	return dst[:len(header)+1+n], nil
}

func (c *LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	size, prefixLen := binary.Uvarint(data)
	if prefixLen <= 0 {
		return nil, fmt.Errorf("lz4 decompress error: missing length prefix")
	}
	if prefixLen >= len(data) {
		return nil, fmt.Errorf("lz4 decompress error: missing block flag")
	}
	flag := data[prefixLen]
	block := data[prefixLen+1:]

	switch flag {
	case lz4BlockRaw:
		if uint64(len(block)) != size {
			return nil, fmt.Errorf("lz4 decompress error: raw block is %d bytes, expected %d", len(block), size)
		}
		return &lz4ReadCloser{Reader: bytes.NewReader(block)}, nil
	case lz4BlockCompressed:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(block, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress error: %w", err)
		}
		return &lz4ReadCloser{Reader: bytes.NewReader(dst[:n])}, nil
	default:
		return nil, fmt.Errorf("lz4 decompress error: unknown block flag 0x%02x", flag)
	}
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
