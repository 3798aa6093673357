package filestore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/INLOpen/nexuslog/core"
)

// DefaultMaxSegmentSize is the default rotation threshold for a message
// segment file.
const DefaultMaxSegmentSize = 64 * 1024 * 1024 // 64 MB

// segment represents a single message segment file of a log partition.
type segment struct {
	file  *os.File
	path  string
	index uint64
}

// segmentWriter handles appending framed records to a segment.
type segmentWriter struct {
	*segment
	writer *bufio.Writer
}

// segmentReader handles reading framed records back from a segment.
type segmentReader struct {
	*segment
	reader *bufio.Reader
}

// createSegment creates a new segment file with the standard header.
func createSegment(dir string, index uint64, compression core.CompressionType) (*segmentWriter, error) {
	path := filepath.Join(dir, core.FormatSegmentFileName(index))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}

	header := core.NewFileHeader(core.SegmentMagicNumber, compression)
	if err := binary.Write(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write segment header to %s: %w", path, err)
	}

	return &segmentWriter{
		segment: &segment{file: file, path: path, index: index},
		writer:  bufio.NewWriter(file),
	}, nil
}

// openSegmentForAppend reopens an existing segment file to continue appending.
func openSegmentForAppend(dir string, index uint64) (*segmentWriter, error) {
	path := filepath.Join(dir, core.FormatSegmentFileName(index))
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file for appending %s: %w", path, err)
	}
	return &segmentWriter{
		segment: &segment{file: file, path: path, index: index},
		writer:  bufio.NewWriter(file),
	}, nil
}

// openSegmentForRead opens a segment file and validates its header. The
// returned reader is positioned at the first record.
func openSegmentForRead(dir string, index uint64) (*segmentReader, core.CompressionType, error) {
	path := filepath.Join(dir, core.FormatSegmentFileName(index))
	file, err := os.Open(path)
	if err != nil {
		return nil, core.CompressionNone, err
	}

	var header core.FileHeader
	if err := binary.Read(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		if err == io.EOF {
			return nil, core.CompressionNone, fmt.Errorf("segment file %s is empty or truncated at header", path)
		}
		return nil, core.CompressionNone, fmt.Errorf("failed to read segment header from %s: %w", path, err)
	}
	if header.Magic != core.SegmentMagicNumber {
		file.Close()
		return nil, core.CompressionNone, fmt.Errorf("invalid magic number in segment %s: got %x, want %x", path, header.Magic, core.SegmentMagicNumber)
	}

	return &segmentReader{
		segment: &segment{file: file, path: path, index: index},
		reader:  bufio.NewReader(file),
	}, header.CompressorType, nil
}

// writeRecord appends a single framed record.
// Format: length (4 bytes) | payload (variable) | crc32 of payload (4 bytes).
func (sw *segmentWriter) writeRecord(payload []byte) error {
	if sw.file == nil {
		return os.ErrClosed
	}
	if err := binary.Write(sw.writer, binary.LittleEndian, uint32(len(payload))); err != nil {
		return fmt.Errorf("failed to write record length: %w", err)
	}
	if _, err := sw.writer.Write(payload); err != nil {
		return fmt.Errorf("failed to write record payload: %w", err)
	}
	checksum := crc32.ChecksumIEEE(payload)
	if err := binary.Write(sw.writer, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("failed to write record checksum: %w", err)
	}
	return nil
}

// errRecordChecksum marks a record whose payload does not match its stored
// checksum, which at the tail of the last segment indicates a torn write.
var errRecordChecksum = errors.New("record checksum mismatch")

// readRecord reads the next framed record and verifies its checksum. io.EOF
// is only returned at a clean record boundary; a record cut off mid-frame
// yields io.ErrUnexpectedEOF.
func (sr *segmentReader) readRecord() ([]byte, error) {
	var length uint32
	if err := binary.Read(sr.reader, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(sr.reader, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	var checksum uint32
	if err := binary.Read(sr.reader, binary.LittleEndian, &checksum); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if crc32.ChecksumIEEE(payload) != checksum {
		return nil, fmt.Errorf("%w in segment %s", errRecordChecksum, sr.path)
	}
	return payload, nil
}

// sync flushes buffered records and forces them to stable storage.
func (sw *segmentWriter) sync() error {
	if err := sw.writer.Flush(); err != nil {
		return err
	}
	return sw.file.Sync()
}

// flush pushes buffered records to the OS without an fsync.
func (sw *segmentWriter) flush() error {
	return sw.writer.Flush()
}

func (sw *segmentWriter) size() (int64, error) {
	if sw.file == nil {
		return 0, os.ErrClosed
	}
	stat, err := sw.file.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size() + int64(sw.writer.Buffered()), nil
}

func (sw *segmentWriter) close() error {
	if sw.file == nil {
		return nil
	}
	err := sw.sync()
	closeErr := sw.file.Close()
	sw.file = nil
	if err != nil {
		return err
	}
	return closeErr
}

func (sr *segmentReader) close() error {
	if sr.file == nil {
		return nil
	}
	err := sr.file.Close()
	sr.file = nil
	return err
}
