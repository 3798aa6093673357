package compressors

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/INLOpen/nexuslog/core"
	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements core.Compressor using zstd. Encoder and decoder
// are created lazily and shared; EncodeAll/DecodeAll are safe for concurrent
// use.
type ZstdCompressor struct {
	once    sync.Once
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	initErr error
}

type zstdReadCloser struct {
	*bytes.Reader
}

func (z *zstdReadCloser) Close() error { return nil }

var _ core.Compressor = (*ZstdCompressor)(nil)

func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{}
}

func (c *ZstdCompressor) init() error {
	c.once.Do(func() {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			c.initErr = fmt.Errorf("zstd encoder init error: %w", err)
			return
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(100*1024*1024))
		if err != nil {
			c.initErr = fmt.Errorf("zstd decoder init error: %w", err)
			return
		}
		c.encoder = enc
		c.decoder = dec
	})
	return c.initErr
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	return c.encoder.EncodeAll(data, nil), nil
}

func (c *ZstdCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress error: %w", err)
	}
	return &zstdReadCloser{Reader: bytes.NewReader(decompressed)}, nil
}

func (c *ZstdCompressor) Type() core.CompressionType {
	return core.CompressionZSTD
}
