package rag

import (
	"context"

	"github.com/mediaforge/media-rag/models"
	"github.com/mediaforge/media-rag/vectorstore"
)

// RetrievalResult is one matching chunk. Similarity is 1 - cosine distance,
// clamped to [0,1]; higher means more relevant.
type RetrievalResult struct {
	Text       string         `json:"text"`
	Similarity float64        `json:"similarity"`
	DocumentID string         `json:"document_id"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Retriever embeds queries with the same model used at indexing time and
// returns the nearest stored chunks. It is read-only over the vector store.
type Retriever struct {
	embedder Embedder
	store    vectorstore.Store
}

func NewRetriever(embedder Embedder, store vectorstore.Store) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search returns up to topK chunks ordered by descending similarity. An empty
// index yields an empty slice and no error.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]RetrievalResult, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &models.CapabilityError{Capability: "embedding", Err: err}
	}

	hits, err := r.store.Query(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	results := make([]RetrievalResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, RetrievalResult{
			Text:       h.Text,
			Similarity: clamp01(1 - h.Distance),
			DocumentID: h.DocumentID,
			ChunkIndex: h.ChunkIndex,
			Metadata:   h.Metadata,
		})
	}
	return results, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
