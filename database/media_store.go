package database

import (
	"context"
	"errors"

	"github.com/mediaforge/media-rag/models"
	"gorm.io/gorm"
)

// MediaStore persists MediaRecord rows through gorm. It implements
// jobs.MediaStore.
type MediaStore struct {
	db *gorm.DB
}

func NewMediaStore(db *gorm.DB) *MediaStore {
	return &MediaStore{db: db}
}

func (s *MediaStore) Create(ctx context.Context, rec *models.MediaRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *MediaStore) Get(ctx context.Context, id string) (*models.MediaRecord, error) {
	var rec models.MediaRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Resource: "media", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MediaStore) Update(ctx context.Context, rec *models.MediaRecord) error {
	return s.db.WithContext(ctx).Save(rec).Error
}

func (s *MediaStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.MediaRecord{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Resource: "media", ID: id}
	}
	return nil
}

func (s *MediaStore) List(ctx context.Context, mediaType models.MediaType, status models.ProcessingStatus, limit, offset int) ([]models.MediaRecord, error) {
	q := s.db.WithContext(ctx).Model(&models.MediaRecord{})
	if mediaType != "" {
		q = q.Where("media_type = ?", mediaType)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit <= 0 {
		limit = 50
	}
	var recs []models.MediaRecord
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
