package compressors

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"testing"

	"github.com/INLOpen/nexuslog/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, c core.Compressor, data []byte) []byte {
	t.Helper()
	compressed, err := c.Compress(data)
	require.NoError(t, err)

	rc, err := c.Decompress(compressed)
	require.NoError(t, err)
	defer rc.Close()

	out, err := io.ReadAll(rc)
	require.NoError(t, err)
	return out
}

func TestCompressors_RoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("log message payload "), 200)

	random := make([]byte, 4096)
	rng := rand.New(rand.NewSource(7))
	rng.Read(random)

	for _, c := range []core.Compressor{
		NewNoCompressionCompressor(),
		NewSnappyCompressor(),
		NewLz4Compressor(),
		NewZstdCompressor(),
	} {
		t.Run(c.Type().String(), func(t *testing.T) {
			assert.Equal(t, compressible, roundTrip(t, c, compressible))
			assert.Equal(t, random, roundTrip(t, c, random), "incompressible input must survive")
			assert.Empty(t, roundTrip(t, c, nil))
		})
	}
}

func TestLz4_BlockFlagDisambiguatesRawFromCompressed(t *testing.T) {
	c := NewLz4Compressor()

	flagOf := func(t *testing.T, payload []byte) byte {
		t.Helper()
		compressed, err := c.Compress(payload)
		require.NoError(t, err)
		size, prefixLen := binary.Uvarint(compressed)
		require.Positive(t, prefixLen)
		require.Equal(t, uint64(len(payload)), size)
		require.Greater(t, len(compressed), prefixLen)
		return compressed[prefixLen]
	}

	compressible := bytes.Repeat([]byte("tick "), 500)
	assert.EqualValues(t, 0x01, flagOf(t, compressible))

	random := make([]byte, 512)
	rng := rand.New(rand.NewSource(11))
	rng.Read(random)
	assert.EqualValues(t, 0x00, flagOf(t, random))

	// A payload whose compressed form happens to match the original length
	// must still decode through the block path, not raw passthrough.
	assert.Equal(t, compressible, roundTrip(t, c, compressible))
	assert.Equal(t, random, roundTrip(t, c, random))

	_, err := c.Decompress([]byte{0x04, 0x7f, 0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err, "unknown block flag must be rejected")
}

func TestCompressors_SnappyShrinksCompressibleInput(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 1000)
	compressed, err := NewSnappyCompressor().Compress(data)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(data))
}

func TestNewCompressor_Factory(t *testing.T) {
	for _, ct := range []core.CompressionType{
		core.CompressionNone, core.CompressionSnappy, core.CompressionLZ4, core.CompressionZSTD,
	} {
		c, err := NewCompressor(ct)
		require.NoError(t, err)
		assert.Equal(t, ct, c.Type())
	}

	_, err := NewCompressor(core.CompressionType(99))
	assert.Error(t, err)
}
