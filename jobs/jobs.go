// Package jobs owns the media processing lifecycle. All MediaRecord status
// transitions go through Service; nothing else mutates processing state.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mediaforge/media-rag/extractor"
	"github.com/mediaforge/media-rag/models"
)

// MediaStore persists media records.
type MediaStore interface {
	Create(ctx context.Context, rec *models.MediaRecord) error
	Get(ctx context.Context, id string) (*models.MediaRecord, error)
	Update(ctx context.Context, rec *models.MediaRecord) error
}

// Indexer feeds extracted text into the chunk/embed/store pipeline.
type Indexer interface {
	IndexDocument(ctx context.Context, text, documentID string, metadata map[string]any) (int, error)
}

// Extractor produces text and metadata from a media file.
type Extractor interface {
	Process(ctx context.Context, mediaID, path string, kind models.MediaType) (*extractor.Extraction, error)
}

// Enqueuer schedules a background processing task for a media record and
// returns the task id.
type Enqueuer func(mediaID string) (string, error)

// Service is the job state machine: pending -> processing -> completed or
// failed, with reprocess resetting a terminal record back to pending.
type Service struct {
	store     MediaStore
	extractor Extractor
	indexer   Indexer
	enqueue   Enqueuer

	mu    sync.Mutex
	locks map[string]*idLock
}

func NewService(store MediaStore, ext Extractor, indexer Indexer, enqueue Enqueuer) *Service {
	return &Service{
		store:     store,
		extractor: ext,
		indexer:   indexer,
		enqueue:   enqueue,
		locks:     make(map[string]*idLock),
	}
}

// Submit registers the record and schedules asynchronous extraction. It is
// valid when no job exists for the id or the previous one reached a terminal
// state; a pending or processing job for the same record yields a
// ConflictError and leaves the existing job untouched.
func (s *Service) Submit(ctx context.Context, rec *models.MediaRecord) (string, error) {
	existing, err := s.store.Get(ctx, rec.ID)
	if err == nil {
		if !existing.Status.IsTerminal() {
			return "", &models.ConflictError{MediaID: rec.ID, Status: existing.Status}
		}
		existing.Status = models.StatusPending
		existing.ProcessingError = ""
		if err := s.store.Update(ctx, existing); err != nil {
			return "", err
		}
	} else {
		var notFound *models.NotFoundError
		if !errors.As(err, &notFound) {
			return "", err
		}
		rec.Status = models.StatusPending
		rec.ProcessingError = ""
		if err := s.store.Create(ctx, rec); err != nil {
			return "", err
		}
	}

	taskID, err := s.enqueue(rec.ID)
	if err != nil {
		return "", err
	}
	slog.Info("media job submitted", "media_id", rec.ID, "task_id", taskID, "media_type", rec.MediaType)
	return taskID, nil
}

// Begin transitions pending -> processing. It is an idempotent no-op when the
// record is already processing.
func (s *Service) Begin(ctx context.Context, id string) (*models.MediaRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case models.StatusProcessing:
		return rec, nil
	case models.StatusPending:
		rec.Status = models.StatusProcessing
		if err := s.store.Update(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("cannot begin job for media %s in status %s", id, rec.Status)
	}
}

// Complete transitions processing -> completed, persists the extracted text
// and metadata, then hands the text off to the indexing pipeline. An indexing
// failure is recorded as a failed transition on the same job; the error
// detail distinguishes it from an extraction failure.
func (s *Service) Complete(ctx context.Context, id, text string, metadata map[string]any) error {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != models.StatusProcessing {
		return fmt.Errorf("cannot complete job for media %s in status %s", id, rec.Status)
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	rec.Status = models.StatusCompleted
	rec.ExtractedText = text
	rec.Metadata = meta
	rec.ProcessingError = ""
	if err := s.store.Update(ctx, rec); err != nil {
		return err
	}

	if text != "" {
		_, err := s.indexer.IndexDocument(ctx, text, rec.DocumentID(), map[string]any{
			"media_id":   rec.ID,
			"media_type": string(rec.MediaType),
		})
		if err != nil {
			s.Fail(ctx, id, "indexing: "+err.Error())
			return nil
		}
	}

	slog.Info("media job completed", "media_id", id, "text_length", len(text))
	return nil
}

// Fail records a terminal failure with its error detail. It never returns an
// error to the caller; failure handling is terminal-but-recorded.
func (s *Service) Fail(ctx context.Context, id, detail string) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		slog.Error("cannot record job failure", "media_id", id, "error", err)
		return
	}
	rec.Status = models.StatusFailed
	rec.ProcessingError = detail
	if err := s.store.Update(ctx, rec); err != nil {
		slog.Error("cannot persist job failure", "media_id", id, "error", err)
		return
	}
	slog.Warn("media job failed", "media_id", id, "detail", detail)
}

// Reprocess resets a terminal record to pending, clears the prior error and
// schedules extraction again. Records with an active job yield a
// ConflictError.
func (s *Service) Reprocess(ctx context.Context, id string) (string, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !rec.Status.IsTerminal() {
		return "", &models.ConflictError{MediaID: id, Status: rec.Status}
	}
	rec.Status = models.StatusPending
	rec.ProcessingError = ""
	if err := s.store.Update(ctx, rec); err != nil {
		return "", err
	}

	taskID, err := s.enqueue(id)
	if err != nil {
		return "", err
	}
	slog.Info("media job resubmitted", "media_id", id, "task_id", taskID)
	return taskID, nil
}

// Run drives one job end to end: begin, extract, then complete or fail. Jobs
// for the same media id are serialized; jobs for different ids run
// concurrently. The returned record carries the terminal status so callers
// can report the outcome; the error is non-nil only when the job could not
// be started at all (e.g. the record is gone).
func (s *Service) Run(ctx context.Context, id string) (*models.MediaRecord, error) {
	unlock := s.lock(id)
	defer unlock()

	rec, err := s.Begin(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.extractor.Process(ctx, id, rec.FilePath, rec.MediaType)
	if err != nil {
		s.Fail(ctx, id, err.Error())
		return s.store.Get(ctx, id)
	}

	if err := s.Complete(ctx, id, result.Text, result.Metadata); err != nil {
		s.Fail(ctx, id, err.Error())
	}
	return s.store.Get(ctx, id)
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes jobs per media id. Entries are reference-counted and
// removed once uncontended, so the map does not grow with the number of ids
// ever processed.
func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
