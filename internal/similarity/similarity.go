// Package similarity ranks stored entity vectors against a query vector by
// cosine similarity.
package similarity

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/dshills/devmatch-mcp/pkg/types"
)

// Entry is one vector of the searchable corpus
type Entry struct {
	ID     string
	Vector []float32
}

// Match is a corpus entry scored against a query
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Cosine returns the cosine similarity of a and b in [-1,1]. It returns 0 when
// either vector has zero norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push parallel vectors a hair past 1.
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// Search scores every corpus entry against query, drops entries scoring below
// threshold, and returns the rest by score descending with ties broken by
// ascending id. limit <= 0 means no truncation.
func Search(query []float32, corpus []Entry, threshold float64, limit int) []Match {
	matches := make([]Match, 0, len(corpus))
	for _, e := range corpus {
		score := Cosine(query, e.Vector)
		if score < threshold {
			continue
		}
		matches = append(matches, Match{ID: e.ID, Score: score})
	}
	SortMatches(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// SortMatches orders matches by score descending, then id ascending
func SortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}

// Backend stores combined entity vectors and answers threshold/top-k queries
// with the ordering of Search.
type Backend interface {
	SearchVectors(ctx context.Context, kind types.EntityKind, query []float32, threshold float64, limit int) ([]Match, error)
}

// Index searches combined vectors of one entity kind through a Backend
type Index struct {
	backend   Backend
	threshold float64
}

// NewIndex creates an index with the given similarity threshold
func NewIndex(backend Backend, threshold float64) *Index {
	return &Index{backend: backend, threshold: threshold}
}

// Threshold returns the configured similarity floor
func (i *Index) Threshold() float64 {
	return i.threshold
}

// Search returns up to limit entities of kind most similar to query. A zero
// query vector has no direction and matches nothing.
func (i *Index) Search(ctx context.Context, kind types.EntityKind, query []float32, limit int) ([]Match, error) {
	if isZero(query) {
		return []Match{}, nil
	}
	return i.backend.SearchVectors(ctx, kind, query, i.threshold, limit)
}

// MemoryBackend keeps vectors in memory and scans them linearly
type MemoryBackend struct {
	mu      sync.RWMutex
	vectors map[types.EntityKind]map[string][]float32
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{vectors: make(map[types.EntityKind]map[string][]float32)}
}

// Upsert stores a copy of vector for the entity, replacing any previous one
func (m *MemoryBackend) Upsert(kind types.EntityKind, id string, vector []float32) {
	v := make([]float32, len(vector))
	copy(v, vector)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vectors[kind] == nil {
		m.vectors[kind] = make(map[string][]float32)
	}
	m.vectors[kind][id] = v
}

// Delete removes the entity's vector
func (m *MemoryBackend) Delete(kind types.EntityKind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors[kind], id)
}

// Len returns the number of vectors stored for kind
func (m *MemoryBackend) Len(kind types.EntityKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors[kind])
}

// SearchVectors implements Backend
func (m *MemoryBackend) SearchVectors(ctx context.Context, kind types.EntityKind, query []float32, threshold float64, limit int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	corpus := make([]Entry, 0, len(m.vectors[kind]))
	for id, v := range m.vectors[kind] {
		corpus = append(corpus, Entry{ID: id, Vector: v})
	}
	m.mu.RUnlock()

	return Search(query, corpus, threshold, limit), nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
