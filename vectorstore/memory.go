package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Memory is a brute-force cosine store. It backs tests and deployments
// without Postgres.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Upsert(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, vector []float32, topK int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}

	results := make([]Result, 0, len(m.entries))
	for _, e := range m.entries {
		results = append(results, Result{
			ID:         e.ID,
			DocumentID: e.DocumentID,
			ChunkIndex: e.ChunkIndex,
			Text:       e.Text,
			Metadata:   e.Metadata,
			Distance:   cosineDistance(vector, e.Vector),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (m *Memory) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.DocumentID == documentID {
			delete(m.entries, id)
		}
	}
	return nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
