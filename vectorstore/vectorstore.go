package vectorstore

import "context"

// Entry is one chunk vector to persist. The ID is caller-assigned and upserts
// overwrite by ID.
type Entry struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Text       string
	Vector     []float32
	Model      string
	Metadata   map[string]any
}

// Result is a stored chunk returned from a similarity query. Distance is
// cosine distance (0 identical, 2 opposite).
type Result struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Text       string
	Metadata   map[string]any
	Distance   float64
}

// Store persists chunk vectors and answers nearest-neighbour queries.
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, topK int) ([]Result, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}
