package models

import (
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// ProcessingStatus values are stored verbatim in the database; do not rename.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// IsTerminal reports whether the status allows a new job to be submitted.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MediaRecord tracks one uploaded media file through the processing pipeline.
// Status transitions are owned exclusively by the jobs package.
type MediaRecord struct {
	ID              string           `gorm:"primaryKey" json:"id"`
	Filename        string           `json:"filename"`
	OriginalName    string           `json:"original_name"`
	FilePath        string           `gorm:"uniqueIndex" json:"file_path"`
	FileSize        int64            `json:"file_size"`
	MimeType        string           `json:"mime_type"`
	MediaType       MediaType        `gorm:"index" json:"media_type"`
	Status          ProcessingStatus `gorm:"index;default:pending" json:"status"`
	ProcessingError string           `json:"processing_error,omitempty"`
	ExtractedText   string           `gorm:"type:text" json:"extracted_text,omitempty"`
	Metadata        datatypes.JSON   `json:"metadata,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// DocumentID returns the identifier used for this record's chunks in the
// vector store.
func (m *MediaRecord) DocumentID() string {
	return "media_" + m.ID
}

var (
	imageExtensions = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".webp": {},
	}
	videoExtensions = map[string]struct{}{
		".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".webm": {},
	}
	audioExtensions = map[string]struct{}{
		".mp3": {}, ".wav": {}, ".m4a": {}, ".flac": {}, ".ogg": {},
	}
)

// DetectMediaType determines the media kind from a file's extension.
// The boolean is false for unsupported formats.
func DetectMediaType(filePath string) (MediaType, bool) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if _, ok := imageExtensions[ext]; ok {
		return MediaTypeImage, true
	}
	if _, ok := videoExtensions[ext]; ok {
		return MediaTypeVideo, true
	}
	if _, ok := audioExtensions[ext]; ok {
		return MediaTypeAudio, true
	}
	return "", false
}
