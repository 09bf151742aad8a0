package models

import (
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// EmbeddingDim is the vector column dimension, sized for nomic-embed-text.
// Switching EMBEDDING_MODEL to a model with a different output dimension
// requires migrating the column; the vector store rejects mismatched vectors
// before they reach Postgres.
const EmbeddingDim = 768

// ChunkEmbedding is one embedded chunk of a document's extracted text.
// The ID is deterministic ({documentID}_{chunkIndex}) so re-indexing a
// document overwrites its previous chunks instead of duplicating them.
type ChunkEmbedding struct {
	ID             string          `gorm:"primaryKey" json:"id"`
	DocumentID     string          `gorm:"index" json:"document_id"`
	ChunkIndex     int             `json:"chunk_index"`
	ChunkSize      int             `json:"chunk_size"`
	Text           string          `gorm:"type:text" json:"text"`
	Embedding      pgvector.Vector `gorm:"type:vector(768)" json:"embedding"` // keep in sync with EmbeddingDim
	EmbeddingModel string          `gorm:"index" json:"embedding_model"`
	Metadata       datatypes.JSON  `json:"metadata,omitempty"`
}
