// Package filestore is the durable backend.Store. Each log partition is a
// directory of append-only segment files plus one checkpoint file per reader
// identifier. Appends are fsynced before returning, so a message is never
// lost once Append has returned.
package filestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/INLOpen/nexuslog/backend"
	"github.com/INLOpen/nexuslog/compressors"
	"github.com/INLOpen/nexuslog/core"
)

// SyncMode defines when appended records are forced to stable storage.
type SyncMode string

const (
	// SyncAlways fsyncs after every append. This is what gives Append its
	// durable-on-return guarantee and is the production default.
	SyncAlways SyncMode = "always"
	// SyncDisabled skips fsync. For tests and benchmarks only.
	SyncDisabled SyncMode = "disabled"
)

// Options holds configuration for the file store.
type Options struct {
	Dir            string
	Compression    core.CompressionType
	MaxSegmentSize int64
	SyncMode       SyncMode
	Logger         *slog.Logger
}

// Store is a durable backend.Store over per-log segment directories.
type Store struct {
	mu         sync.Mutex
	opts       Options
	compressor core.Compressor
	logger     *slog.Logger
	partitions map[string]*partition
	closed     bool
}

type partition struct {
	mu       sync.Mutex
	dir      string
	segments []uint64          // sorted segment indexes
	segFirst map[uint64]uint64 // first position held by each segment
	active   *segmentWriter
	nextPos  uint64
}

var _ backend.Store = (*Store)(nil)

// Open creates or opens a file store rooted at opts.Dir.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts.Logger = opts.Logger.With("component", "FileStore")
	if opts.MaxSegmentSize == 0 {
		opts.MaxSegmentSize = DefaultMaxSegmentSize
	}
	if opts.SyncMode == "" {
		opts.SyncMode = SyncAlways
	}

	compressor, err := compressors.NewCompressor(opts.Compression)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create store directory %s: %w", core.ErrBackendUnavailable, opts.Dir, err)
	}

	return &Store{
		opts:       opts,
		compressor: compressor,
		logger:     opts.Logger,
		partitions: make(map[string]*partition),
	}, nil
}

// encodeEntry serializes the backend entry into a record payload.
// Layout: position (8) | timestamp unix-nanos (8) | sender length (uvarint) |
// sender | content.
func encodeEntry(e backend.Entry) []byte {
	buf := make([]byte, 16, 16+binary.MaxVarintLen64+len(e.SenderID)+len(e.Content))
	binary.LittleEndian.PutUint64(buf[0:8], e.Position)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Timestamp.UnixNano()))
	buf = binary.AppendUvarint(buf, uint64(len(e.SenderID)))
	buf = append(buf, e.SenderID...)
	buf = append(buf, e.Content...)
	return buf
}

func decodeEntry(payload []byte) (backend.Entry, error) {
	if len(payload) < 16 {
		return backend.Entry{}, fmt.Errorf("record payload too short: %d bytes", len(payload))
	}
	pos := binary.LittleEndian.Uint64(payload[0:8])
	ts := int64(binary.LittleEndian.Uint64(payload[8:16]))
	rest := payload[16:]

	senderLen, n := binary.Uvarint(rest)
	if n <= 0 || uint64(len(rest)-n) < senderLen {
		return backend.Entry{}, fmt.Errorf("record payload has invalid sender length")
	}
	rest = rest[n:]
	sender := string(rest[:senderLen])
	content := make([]byte, len(rest)-int(senderLen))
	copy(content, rest[senderLen:])

	return backend.Entry{
		Position:  pos,
		SenderID:  sender,
		Timestamp: time.Unix(0, ts),
		Content:   content,
	}, nil
}

func (s *Store) partition(name string) (*partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, core.ErrClosed
	}
	if p, ok := s.partitions[name]; ok {
		return p, nil
	}
	p, err := s.openPartition(name)
	if err != nil {
		return nil, err
	}
	s.partitions[name] = p
	return p, nil
}

// openPartition creates or recovers the segment directory for a log name.
func (s *Store) openPartition(name string) (*partition, error) {
	dir := filepath.Join(s.opts.Dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create partition directory %s: %w", core.ErrBackendUnavailable, dir, err)
	}

	p := &partition{dir: dir, segFirst: make(map[uint64]uint64)}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list partition directory %s: %w", core.ErrBackendUnavailable, dir, err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		index, err := core.ParseSegmentFileName(f.Name())
		if err != nil {
			continue // checkpoint or temp file
		}
		p.segments = append(p.segments, index)
	}
	sort.Slice(p.segments, func(i, j int) bool { return p.segments[i] < p.segments[j] })

	if len(p.segments) == 0 {
		writer, err := createSegment(dir, 1, s.opts.Compression)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
		}
		p.segments = []uint64{1}
		p.segFirst[1] = 0
		p.active = writer
		s.logger.Debug("Created new log partition", "log", name, "dir", dir)
		return p, nil
	}

	if err := s.recoverPartition(p); err != nil {
		return nil, fmt.Errorf("%w: recovery of partition %s failed: %w", core.ErrBackendUnavailable, name, err)
	}

	last := p.segments[len(p.segments)-1]
	writer, err := openSegmentForAppend(dir, last)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
	}
	p.active = writer
	s.logger.Debug("Recovered log partition", "log", name, "segments", len(p.segments), "next_position", p.nextPos)
	return p, nil
}

// recoverPartition replays all segments to rebuild the position index. A
// truncated tail in the last segment is cut off; a torn final write cannot
// have been acknowledged, so dropping it is safe.
func (s *Store) recoverPartition(p *partition) error {
	for i, index := range p.segments {
		reader, compression, err := openSegmentForRead(p.dir, index)
		if err != nil {
			return err
		}
		codec, err := compressors.NewCompressor(compression)
		if err != nil {
			reader.close()
			return err
		}
		p.segFirst[index] = p.nextPos

		validSize := int64(binary.Size(core.FileHeader{}))
		for {
			payload, err := reader.readRecord()
			if err != nil {
				if err == io.EOF {
					break
				}
				if i == len(p.segments)-1 && (errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, errRecordChecksum)) {
					s.logger.Warn("Truncated record at end of last segment, discarding tail",
						"segment", index, "valid_size", validSize)
					reader.close()
					if err := os.Truncate(reader.path, validSize); err != nil {
						return fmt.Errorf("failed to truncate torn segment tail: %w", err)
					}
					return nil
				}
				reader.close()
				return err
			}

			entry, err := decodeRecord(codec, payload)
			if err != nil {
				reader.close()
				return err
			}
			p.nextPos = entry.Position + 1
			validSize += int64(8 + len(payload))
		}
		reader.close()
	}
	return nil
}

func decodeRecord(codec core.Compressor, payload []byte) (backend.Entry, error) {
	rc, err := codec.Decompress(payload)
	if err != nil {
		return backend.Entry{}, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return backend.Entry{}, err
	}
	return decodeEntry(raw)
}

func (s *Store) CreateLog(name string) error {
	_, err := s.partition(name)
	return err
}

func (s *Store) Append(name string, senderID string, ts time.Time, content []byte) (uint64, error) {
	p, err := s.partition(name)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.nextPos
	payload, err := s.compressor.Compress(encodeEntry(backend.Entry{
		Position:  pos,
		SenderID:  senderID,
		Timestamp: ts,
		Content:   content,
	}))
	if err != nil {
		return 0, err
	}

	if size, err := p.active.size(); err == nil && size >= s.opts.MaxSegmentSize {
		if err := s.rotateLocked(p); err != nil {
			return 0, fmt.Errorf("%w: segment rotation failed: %w", core.ErrBackendUnavailable, err)
		}
	}

	if err := p.active.writeRecord(payload); err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
	}
	if s.opts.SyncMode == SyncAlways {
		if err := p.active.sync(); err != nil {
			return 0, fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
		}
	}

	p.nextPos = pos + 1
	return pos, nil
}

// rotateLocked closes the active segment and starts the next one. The
// partition lock must be held.
func (s *Store) rotateLocked(p *partition) error {
	if err := p.active.close(); err != nil {
		return err
	}
	next := p.segments[len(p.segments)-1] + 1
	writer, err := createSegment(p.dir, next, s.opts.Compression)
	if err != nil {
		return err
	}
	p.segments = append(p.segments, next)
	p.segFirst[next] = p.nextPos
	p.active = writer
	s.logger.Debug("Rotated segment", "dir", p.dir, "segment", next)
	return nil
}

// iterate walks entries with position >= from in order, calling fn for each
// until fn returns false or the partition is exhausted.
func (s *Store) iterate(name string, from uint64, fn func(backend.Entry) bool) error {
	p, err := s.partition(name)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Push buffered records to the OS so readers observe every append.
	if err := p.active.flush(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
	}

	// Skip segments that end before the requested position.
	start := 0
	for i := len(p.segments) - 1; i >= 0; i-- {
		if p.segFirst[p.segments[i]] <= from {
			start = i
			break
		}
	}

	for _, index := range p.segments[start:] {
		reader, compression, err := openSegmentForRead(p.dir, index)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
		}
		codec, err := compressors.NewCompressor(compression)
		if err != nil {
			reader.close()
			return err
		}
		for {
			payload, err := reader.readRecord()
			if err != nil {
				if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
					break
				}
				reader.close()
				return fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
			}
			entry, err := decodeRecord(codec, payload)
			if err != nil {
				reader.close()
				return err
			}
			if entry.Position < from {
				continue
			}
			if !fn(entry) {
				reader.close()
				return nil
			}
		}
		reader.close()
	}
	return nil
}

func (s *Store) Scan(name string, from uint64, limit int) ([]backend.Entry, error) {
	var result []backend.Entry
	err := s.iterate(name, from, func(e backend.Entry) bool {
		result = append(result, e)
		return limit <= 0 || len(result) < limit
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) End(name string) (uint64, error) {
	p, err := s.partition(name)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextPos, nil
}

func (s *Store) SeekTime(name string, t time.Time) (uint64, error) {
	p, err := s.partition(name)
	if err != nil {
		return 0, err
	}

	pos := uint64(0)
	found := false
	err = s.iterate(name, 0, func(e backend.Entry) bool {
		if !e.Timestamp.Before(t) {
			pos = e.Position
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if !found {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.nextPos, nil
	}
	return pos, nil
}

func (s *Store) ReadCheckpoint(name, identifier string) (uint64, bool, error) {
	p, err := s.partition(name)
	if err != nil {
		return 0, false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return readCheckpointFile(p.dir, identifier)
}

func (s *Store) WriteCheckpoint(name, identifier string, pos uint64) error {
	p, err := s.partition(name)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return writeCheckpointFile(p.dir, identifier, pos)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for name, p := range s.partitions {
		p.mu.Lock()
		if err := p.active.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close partition %s: %w", name, err)
		}
		p.mu.Unlock()
	}
	s.partitions = nil
	return firstErr
}
