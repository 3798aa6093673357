package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/INLOpen/nexuslog/core"
	"github.com/golang/snappy"
)

// SnappyCompressor implements core.Compressor using the snappy block format.
type SnappyCompressor struct{}

type snappyReadCloser struct {
	*bytes.Reader
}

func (s *snappyReadCloser) Close() error { return nil }

var _ core.Compressor = (*SnappyCompressor)(nil)
var _ io.ReadCloser = (*snappyReadCloser)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *SnappyCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	return &snappyReadCloser{Reader: bytes.NewReader(decompressed)}, nil
}

func (c *SnappyCompressor) Type() core.CompressionType {
	return core.CompressionSnappy
}
