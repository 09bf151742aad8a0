package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NoInformationAnswer is returned when retrieval finds nothing. This is a
// normal outcome, not an error.
const NoInformationAnswer = "No relevant information was found for this query."

// Answer is the result of a retrieval-augmented query. When Error is set the
// generation step failed; Sources still carry whatever retrieval found so the
// caller can act on them.
type Answer struct {
	Answer     string            `json:"answer"`
	Sources    []RetrievalResult `json:"sources"`
	Confidence float64           `json:"confidence"`
	Model      string            `json:"model,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Composer retrieves supporting chunks and asks the generation capability to
// answer strictly from them.
type Composer struct {
	retriever *Retriever
	generator Generator
}

func NewComposer(retriever *Retriever, generator Generator) *Composer {
	return &Composer{retriever: retriever, generator: generator}
}

// Answer runs retrieval and generation for the query. Failures downstream of
// retrieval are reported in the result, never returned as an error, so a
// caller can always distinguish "no answer" from "system broke". Confidence
// is the minimum similarity among the retrieved chunks: the answer is only as
// trustworthy as its least-relevant supporting chunk.
func (c *Composer) Answer(ctx context.Context, query string, topK int) *Answer {
	sources, err := c.retriever.Search(ctx, query, topK)
	if err != nil {
		slog.Error("retrieval failed", "query", query, "error", err)
		return &Answer{Error: err.Error()}
	}
	if len(sources) == 0 {
		return &Answer{
			Answer:     NoInformationAnswer,
			Sources:    []RetrievalResult{},
			Confidence: 0,
		}
	}

	confidence := sources[0].Similarity
	for _, s := range sources[1:] {
		if s.Similarity < confidence {
			confidence = s.Similarity
		}
	}

	prompt := buildGroundedPrompt(query, sources)
	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		slog.Error("generation failed", "query", query, "error", err)
		return &Answer{
			Sources:    sources,
			Confidence: confidence,
			Error:      err.Error(),
		}
	}

	return &Answer{
		Answer:     strings.TrimSpace(text),
		Sources:    sources,
		Confidence: confidence,
		Model:      c.generator.GenerateModel(),
	}
}

func buildGroundedPrompt(query string, sources []RetrievalResult) string {
	var context strings.Builder
	for _, s := range sources {
		context.WriteString(s.Text)
		context.WriteString("\n\n")
	}

	return fmt.Sprintf(`Answer the question using only the context below.
If the context does not contain the information needed, reply "insufficient information".

Context:
%s
Question: %s

Answer:`, context.String(), query)
}
