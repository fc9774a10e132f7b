package vectorindex

import (
	"context"
	"math"
)

// Entry is one indexed chunk. Vectors are normalized to unit length
// before storage so cosine similarity reduces to a dot product.
// DocMtime is the owning document's mtime in unix seconds; it breaks
// score ties in favor of fresher material.
type Entry struct {
	ChunkID    string
	DocumentID string
	OwnerID    string
	Content    string
	ModelName  string
	Vector     []float32
	DocMtime   int64
}

type Match struct {
	Entry
	Score float32
}

type Query struct {
	OwnerID   string
	ModelName string
	Vector    []float32
	TopK      int
}

type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, q Query) ([]Match, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Ping(ctx context.Context) error
}

// Normalize returns a unit-length copy of vec. A zero vector is
// returned as-is since it has no direction to preserve.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		copy(out, vec)
		return out
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
