package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// This file centralizes constants related to on-disk file formats, magic
// numbers and file naming used by the durable log backend.

const (
	// SegmentMagicNumber identifies a message log segment file.
	SegmentMagicNumber uint32 = 0x4C4F4753 // "LOGS"
	// CheckpointMagicNumber identifies a reader checkpoint file.
	CheckpointMagicNumber uint32 = 0x4C4F4743 // "LOGC"

	// FormatVersion is the current on-disk format version.
	FormatVersion uint8 = 1
)

const (
	segmentFileSuffix    = ".seg"
	checkpointFileSuffix = ".ckpt"
)

// FileHeader is the standard header written at the start of every persistent
// log file.
type FileHeader struct {
	Magic          uint32
	Version        uint8
	CreatedAt      int64 // UnixNano timestamp
	CompressorType CompressionType
}

func (h *FileHeader) Size() int {
	return binary.Size(h)
}

// NewFileHeader creates a header with the current time and the given magic
// number.
func NewFileHeader(magic uint32, compressorType CompressionType) FileHeader {
	return FileHeader{
		Magic:          magic,
		Version:        FormatVersion,
		CreatedAt:      time.Now().UnixNano(),
		CompressorType: compressorType,
	}
}

// FormatSegmentFileName creates a segment file name from its index.
func FormatSegmentFileName(index uint64) string {
	return fmt.Sprintf("%08d%s", index, segmentFileSuffix)
}

// ParseSegmentFileName extracts the index from a segment file name.
func ParseSegmentFileName(name string) (uint64, error) {
	if !strings.HasSuffix(name, segmentFileSuffix) {
		return 0, fmt.Errorf("file %s is not a log segment file", name)
	}
	name = strings.TrimSuffix(name, segmentFileSuffix)
	return strconv.ParseUint(name, 10, 64)
}

// FormatCheckpointFileName creates a checkpoint file name for an identifier.
// Identifiers are restricted by ReadMarker validation, but the name is still
// escaped so an identifier can never traverse outside the log directory.
func FormatCheckpointFileName(identifier string) string {
	escaped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, identifier)
	return escaped + checkpointFileSuffix
}

// FormatTempFilename derives the temporary name used by write-and-rename
// updates of a file.
func FormatTempFilename(name, suffix string) string {
	return name + "." + suffix
}
