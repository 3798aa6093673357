package core

import (
	"bytes"
	"sort"
)

// SliceQuery describes a range of byte keys: Start is inclusive, End is
// exclusive. A Limit of zero or less means the result set is unbounded.
//
// The storage layer uses slice queries both to describe backend range scans
// and to answer narrower queries from the cached result of a wider one:
// if a cached query subsumes a new one, Subset extracts the answer without
// touching the backend.
type SliceQuery struct {
	Start []byte
	End   []byte
	Limit int
}

// NewSliceQuery creates an unbounded slice query over [start, end).
func NewSliceQuery(start, end []byte) SliceQuery {
	return SliceQuery{Start: start, End: end}
}

// WithLimit returns a copy of the query bounded to at most limit results.
func (q SliceQuery) WithLimit(limit int) SliceQuery {
	q.Limit = limit
	return q
}

// HasLimit reports whether the query is bounded.
func (q SliceQuery) HasLimit() bool { return q.Limit > 0 }

// Contains reports whether key falls inside the query range.
func (q SliceQuery) Contains(key []byte) bool {
	return bytes.Compare(q.Start, key) <= 0 && bytes.Compare(q.End, key) > 0
}

// Subsumes reports whether every result of oth is guaranteed to be present in
// the result of q. An unbounded query subsumes any query over a sub-range; a
// bounded query may have been cut off by its limit, so it only subsumes
// queries that start at the same key and do not ask for more results.
func (q SliceQuery) Subsumes(oth SliceQuery) bool {
	if oth.HasLimit() && q.HasLimit() && oth.Limit > q.Limit {
		return false
	}
	if !oth.HasLimit() && q.HasLimit() {
		return false
	}
	if !q.HasLimit() {
		return bytes.Compare(q.Start, oth.Start) <= 0 && bytes.Compare(q.End, oth.End) >= 0
	}
	return bytes.Equal(q.Start, oth.Start) && bytes.Compare(q.End, oth.End) >= 0
}

// Subset extracts the answer to q from the sorted result of a query that
// subsumes it. keys must be sorted ascending.
func (q SliceQuery) Subset(keys [][]byte) [][]byte {
	pos := sort.Search(len(keys), func(i int) bool {
		return bytes.Compare(keys[i], q.Start) >= 0
	})
	var result [][]byte
	for ; pos < len(keys); pos++ {
		if q.HasLimit() && len(result) >= q.Limit {
			break
		}
		if bytes.Compare(keys[pos], q.End) >= 0 {
			break
		}
		result = append(result, keys[pos])
	}
	return result
}

// PointRange builds the query matching exactly one key.
func PointRange(key []byte) SliceQuery {
	end := make([]byte, len(key)+1)
	copy(end, key)
	return SliceQuery{Start: key, End: end}
}
