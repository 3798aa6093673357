package filestore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/INLOpen/nexuslog/core"
)

// writeCheckpointFile atomically persists a cursor position for the given
// identifier inside the partition directory, using the write-and-rename
// strategy so a crash mid-write never leaves a corrupt checkpoint behind.
func writeCheckpointFile(dir, identifier string, pos uint64) error {
	name := core.FormatCheckpointFileName(identifier)
	tempPath := filepath.Join(dir, core.FormatTempFilename(name, "tmp"))

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint file: %w", err)
	}

	if err := binary.Write(file, binary.LittleEndian, core.CheckpointMagicNumber); err != nil {
		file.Close()
		return fmt.Errorf("failed to write checkpoint magic number: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, pos); err != nil {
		file.Close()
		return fmt.Errorf("failed to write checkpoint position: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync temp checkpoint file: %w", err)
	}
	// Close before renaming; renaming an open file is not portable.
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temp checkpoint file before rename: %w", err)
	}

	finalPath := filepath.Join(dir, name)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("failed to rename temp checkpoint file to final name: %w", err)
	}
	return nil
}

// readCheckpointFile reads the persisted position for the identifier. A
// missing file is not an error; it means no checkpoint has been written.
func readCheckpointFile(dir, identifier string) (uint64, bool, error) {
	path := filepath.Join(dir, core.FormatCheckpointFileName(identifier))
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var magic uint32
	if err := binary.Read(file, binary.LittleEndian, &magic); err != nil {
		return 0, true, fmt.Errorf("failed to read checkpoint magic number: %w", err)
	}
	if magic != core.CheckpointMagicNumber {
		return 0, true, fmt.Errorf("invalid checkpoint magic number: got %x, want %x", magic, core.CheckpointMagicNumber)
	}

	var pos uint64
	if err := binary.Read(file, binary.LittleEndian, &pos); err != nil {
		return 0, true, fmt.Errorf("failed to read checkpoint position: %w", err)
	}
	return pos, true, nil
}
