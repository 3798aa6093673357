// Package memstore is a volatile, key-ordered backend.Store kept entirely in
// memory. It backs embedded deployments and tests; nothing survives a process
// restart.
package memstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/INLOpen/nexuslog/backend"
	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/skiplist"
)

// Store is an in-memory backend.Store. Each log partition is an ordered
// skip list keyed by position, so range scans walk entries in append order.
type Store struct {
	mu     sync.RWMutex
	logs   map[string]*partition
	closed bool
}

type partition struct {
	mu          sync.RWMutex
	entries     *skiplist.SkipList[uint64, *backend.Entry]
	checkpoints map[string]uint64
	nextPos     uint64
}

var _ backend.Store = (*Store)(nil)

func comparePositions(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{logs: make(map[string]*partition)}
}

func (s *Store) partition(name string, create bool) (*partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, core.ErrClosed
	}
	p, ok := s.logs[name]
	if !ok {
		if !create {
			return nil, fmt.Errorf("%w: unknown log %q", core.ErrBackendUnavailable, name)
		}
		p = &partition{
			entries:     skiplist.NewWithComparator[uint64, *backend.Entry](comparePositions),
			checkpoints: make(map[string]uint64),
		}
		s.logs[name] = p
	}
	return p, nil
}

func (s *Store) CreateLog(name string) error {
	_, err := s.partition(name, true)
	return err
}

func (s *Store) Append(name string, senderID string, ts time.Time, content []byte) (uint64, error) {
	p, err := s.partition(name, true)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.nextPos
	p.nextPos++

	stored := make([]byte, len(content))
	copy(stored, content)
	p.entries.Insert(pos, &backend.Entry{
		Position:  pos,
		SenderID:  senderID,
		Timestamp: ts,
		Content:   stored,
	})
	return pos, nil
}

func (s *Store) Scan(name string, from uint64, limit int) ([]backend.Entry, error) {
	p, err := s.partition(name, true)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []backend.Entry
	iter := p.entries.NewIterator()
	ok := iter.Seek(from)
	for ; ok; ok = iter.Next() {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, *iter.Value())
	}
	return result, nil
}

func (s *Store) End(name string) (uint64, error) {
	p, err := s.partition(name, true)
	if err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextPos, nil
}

func (s *Store) SeekTime(name string, t time.Time) (uint64, error) {
	p, err := s.partition(name, true)
	if err != nil {
		return 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	iter := p.entries.NewIterator()
	for ok := iter.First(); ok; ok = iter.Next() {
		if !iter.Value().Timestamp.Before(t) {
			return iter.Key(), nil
		}
	}
	return p.nextPos, nil
}

func (s *Store) ReadCheckpoint(name, identifier string) (uint64, bool, error) {
	p, err := s.partition(name, true)
	if err != nil {
		return 0, false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.checkpoints[identifier]
	return pos, ok, nil
}

func (s *Store) WriteCheckpoint(name, identifier string, pos uint64) error {
	p, err := s.partition(name, true)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkpoints[identifier] = pos
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.logs = nil
	return nil
}
