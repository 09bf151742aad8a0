package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/mediaforge/media-rag/models"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres stores chunk vectors in the chunk_embeddings table with a pgvector
// column and answers queries via the cosine distance operator.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]models.ChunkEmbedding, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != models.EmbeddingDim {
			return fmt.Errorf("got %d-dimensional embedding for chunk %s, column is vector(%d); check EMBEDDING_MODEL",
				len(e.Vector), e.ID, models.EmbeddingDim)
		}
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		rows = append(rows, models.ChunkEmbedding{
			ID:             e.ID,
			DocumentID:     e.DocumentID,
			ChunkIndex:     e.ChunkIndex,
			ChunkSize:      utf8.RuneCountInString(e.Text),
			Text:           e.Text,
			Embedding:      pgvector.NewVector(e.Vector),
			EmbeddingModel: e.Model,
			Metadata:       meta,
		})
	}
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&rows).Error
}

func (p *Postgres) Query(ctx context.Context, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}

	var rows []struct {
		models.ChunkEmbedding
		Distance float64
	}
	err := p.db.WithContext(ctx).Raw(
		`SELECT *, embedding <=> ? AS distance FROM chunk_embeddings ORDER BY embedding <=> ? LIMIT ?`,
		pgvector.NewVector(vector), pgvector.NewVector(vector), topK,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var meta map[string]any
		if len(row.Metadata) > 0 {
			_ = json.Unmarshal(row.Metadata, &meta)
		}
		results = append(results, Result{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			ChunkIndex: row.ChunkIndex,
			Text:       row.Text,
			Metadata:   meta,
			Distance:   row.Distance,
		})
	}
	return results, nil
}

func (p *Postgres) DeleteByDocument(ctx context.Context, documentID string) error {
	return p.db.WithContext(ctx).
		Delete(&models.ChunkEmbedding{}, "document_id = ?", documentID).Error
}
