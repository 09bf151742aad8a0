// Package rag implements the chunk/embed/store pipeline, similarity
// retrieval and grounded answer composition over the vector store.
package rag

import "context"

// Embedder converts text into a vector. Vectors are only comparable when
// produced by the same embedding model, so implementations expose the model
// identifier and it is recorded alongside every stored vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbeddingModel() string
}

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateModel() string
}
