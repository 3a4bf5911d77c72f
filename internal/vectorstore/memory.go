package vectorstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process cosine-similarity store. It backs tests and the
// "memory" backend for local development without Qdrant.
type Memory struct {
	mu     sync.RWMutex
	dim    int
	points map[string]memoryPoint
}

type memoryPoint struct {
	vector  []float32
	payload map[string]any
}

func NewMemory() *Memory {
	return &Memory{points: make(map[string]memoryPoint)}
}

func (m *Memory) EnsureCollection(ctx context.Context, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim == 0 {
		m.dim = dimension
	}
	return nil
}

func (m *Memory) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = memoryPoint{
			vector: p.Vector,
			payload: map[string]any{
				"content":  p.Payload.Content,
				"metadata": p.Payload.Metadata,
			},
		}
	}
	return nil
}

// UpsertRaw stores a point with an arbitrary payload shape. It exists so
// tests can simulate points written by older ingestion paths that kept
// metadata keys at the payload top level.
func (m *Memory) UpsertRaw(id string, vector []float32, payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[id] = memoryPoint{vector: vector, payload: payload}
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func (m *Memory) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		doc   Document
		score float64
	}
	var results []scored
	for _, p := range m.points {
		if filter != nil && !matchesFilter(p.payload, filter) {
			continue
		}
		results = append(results, scored{doc: toDocument(p.payload), score: cosineSimilarity(vector, p.vector)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > limit {
		results = results[:limit]
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = r.doc
	}
	return docs, nil
}

// matchesFilter resolves a dotted key path into the payload and compares
// the leaf against the filter value.
func matchesFilter(payload map[string]any, filter *Filter) bool {
	current := any(payload)
	for _, part := range strings.Split(filter.Key, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current, ok = obj[part]
		if !ok {
			return false
		}
	}
	s, ok := current.(string)
	return ok && s == filter.Value
}

func toDocument(payload map[string]any) Document {
	doc := Document{Metadata: map[string]any{}}
	if v, ok := payload["content"].(string); ok {
		doc.Content = v
	}
	if meta, ok := payload["metadata"].(map[string]any); ok {
		doc.Metadata = meta
	} else {
		for k, v := range payload {
			if k != "content" {
				doc.Metadata[k] = v
			}
		}
	}
	return doc
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
