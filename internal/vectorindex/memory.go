package vectorindex

import (
	"context"
	"sort"
	"sync"

	"github.com/edustack/tutord/internal/pkg/apperr"
)

// MemoryIndex is an in-process brute-force index. It serves development
// configs and tests; ranking semantics match PGIndex.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]Entry
}

func NewMemory(dimension int) (*MemoryIndex, error) {
	if dimension <= 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "vectorindex: dimension must be positive, got %d", dimension)
	}
	return &MemoryIndex{
		dimension: dimension,
		entries:   make(map[string]Entry),
	}, nil
}

func (idx *MemoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	for _, entry := range entries {
		if len(entry.Vector) != idx.dimension {
			return apperr.Newf(apperr.KindInvalid, "vectorindex: entry %s has dimension %d, want %d",
				entry.ChunkID, len(entry.Vector), idx.dimension)
		}
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, entry := range entries {
		entry.Vector = Normalize(entry.Vector)
		idx.entries[entry.ChunkID] = entry
	}
	return nil
}

func (idx *MemoryIndex) Query(ctx context.Context, q Query) ([]Match, error) {
	if len(q.Vector) != idx.dimension {
		return nil, apperr.Newf(apperr.KindInvalidQuery, "query vector has dimension %d, want %d",
			len(q.Vector), idx.dimension)
	}
	if q.TopK <= 0 {
		return nil, apperr.Newf(apperr.KindInvalidQuery, "top_k must be positive, got %d", q.TopK)
	}
	vec := Normalize(q.Vector)
	idx.mu.RLock()
	var matches []Match
	for _, entry := range idx.entries {
		if entry.OwnerID != q.OwnerID || entry.ModelName != q.ModelName {
			continue
		}
		matches = append(matches, Match{Entry: entry, Score: dot(vec, entry.Vector)})
	}
	idx.mu.RUnlock()
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].DocMtime != matches[j].DocMtime {
			return matches[i].DocMtime > matches[j].DocMtime
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	if len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	return matches, nil
}

func (idx *MemoryIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for id, entry := range idx.entries {
		if entry.DocumentID == documentID {
			delete(idx.entries, id)
		}
	}
	return nil
}

func (idx *MemoryIndex) Ping(ctx context.Context) error {
	return nil
}

func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

var _ Index = (*MemoryIndex)(nil)
