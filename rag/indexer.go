package rag

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/mediaforge/media-rag/chunker"
	"github.com/mediaforge/media-rag/models"
	"github.com/mediaforge/media-rag/vectorstore"
)

// Indexer splits a document's text into chunks, embeds each chunk and
// persists the vectors. It never touches MediaRecord state.
type Indexer struct {
	splitter *chunker.Splitter
	embedder Embedder
	store    vectorstore.Store
}

func NewIndexer(splitter *chunker.Splitter, embedder Embedder, store vectorstore.Store) *Indexer {
	return &Indexer{splitter: splitter, embedder: embedder, store: store}
}

// IndexDocument chunks, embeds and stores the text under documentID and
// returns the number of chunks written. Empty or whitespace-only text is a
// no-op. Caller metadata is merged over the pipeline-computed fields, so
// caller-supplied keys win on conflict. Chunk ids are deterministic
// ({documentID}_{index}) and writes are idempotent upserts, so resubmitting a
// document after a partial failure converges.
func (ix *Indexer) IndexDocument(ctx context.Context, text, documentID string, metadata map[string]any) (int, error) {
	chunks := ix.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	entries := make([]vectorstore.Entry, 0, len(chunks))
	for i, chunk := range chunks {
		vec, err := ix.embedder.Embed(ctx, chunk)
		if err != nil {
			return 0, &models.CapabilityError{Capability: "embedding", Err: err}
		}

		// Sizes are rune counts, matching how the splitter measures chunks.
		meta := map[string]any{
			"chunk_index":     i,
			"chunk_size":      utf8.RuneCountInString(chunk),
			"original_length": utf8.RuneCountInString(text),
		}
		for k, v := range metadata {
			meta[k] = v
		}

		entries = append(entries, vectorstore.Entry{
			ID:         fmt.Sprintf("%s_%d", documentID, i),
			DocumentID: documentID,
			ChunkIndex: i,
			Text:       chunk,
			Vector:     vec,
			Model:      ix.embedder.EmbeddingModel(),
			Metadata:   meta,
		})
	}

	if err := ix.store.Upsert(ctx, entries); err != nil {
		return 0, err
	}

	slog.Info("document indexed", "document_id", documentID, "chunks", len(entries))
	return len(entries), nil
}

// DeleteDocument removes all stored chunks for a document.
func (ix *Indexer) DeleteDocument(ctx context.Context, documentID string) error {
	return ix.store.DeleteByDocument(ctx, documentID)
}
