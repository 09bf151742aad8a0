package vectorstore

import (
	"context"
	"strconv"
	"testing"

	"github.com/mediaforge/media-rag/models"
	"github.com/stretchr/testify/assert"
)

func TestPostgresUpsertRejectsWrongDimension(t *testing.T) {
	p := NewPostgres(nil)

	err := p.Upsert(context.Background(), []Entry{{
		ID:     "d_0",
		Text:   "chunk",
		Vector: []float32{1, 2, 3},
	}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "3-dimensional")
	assert.Contains(t, err.Error(), strconv.Itoa(models.EmbeddingDim))
}

func TestPostgresUpsertEmptyIsNoOp(t *testing.T) {
	p := NewPostgres(nil)
	assert.NoError(t, p.Upsert(context.Background(), nil))
}
