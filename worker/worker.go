package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mediaforge/media-rag/jobs"
	"github.com/mediaforge/media-rag/models"
	"github.com/mediaforge/media-rag/queue"
)

// Worker is a pool of goroutines that consume media processing tasks from the
// queue and drive them through the job state machine.
type Worker struct {
	jobs       *jobs.Service
	queueName  string
	numWorkers int
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewWorker creates a worker pool over the given queue.
func NewWorker(jobService *jobs.Service, queueName string, numWorkers int) *Worker {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Worker{
		jobs:       jobService,
		queueName:  queueName,
		numWorkers: numWorkers,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Start begins processing tasks from the queue.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting workers", "count", w.numWorkers, "queue", w.queueName)
	for i := 0; i < w.numWorkers; i++ {
		go w.processItems(ctx, i)
	}
}

// Stop signals the workers to stop and waits for them to finish.
func (w *Worker) Stop() {
	close(w.stopChan)
	for i := 0; i < w.numWorkers; i++ {
		<-w.doneChan
	}
	slog.Info("all workers stopped")
}

func (w *Worker) processItems(ctx context.Context, workerID int) {
	slog.Info("worker started", "worker", workerID)
	defer func() {
		slog.Info("worker stopped", "worker", workerID)
		w.doneChan <- struct{}{}
	}()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		default:
			task, err := queue.Dequeue(w.queueName, 5*time.Second)
			if err != nil {
				slog.Error("dequeue failed", "worker", workerID, "error", err)
				time.Sleep(time.Second)
				continue
			}
			if task == nil {
				continue
			}
			w.handleTask(ctx, workerID, task)
		}
	}
}

func (w *Worker) handleTask(ctx context.Context, workerID int, task *queue.TaskPayload) {
	slog.Info("processing task", "worker", workerID, "task_id", task.TaskID, "type", task.TaskType)

	if err := queue.SetTaskStatus(task.TaskID, "processing"); err != nil {
		slog.Error("cannot update task status", "task_id", task.TaskID, "error", err)
	}

	status, result := w.runTask(ctx, task)
	if status == "failed" {
		slog.Error("task failed", "task_id", task.TaskID, "result", result)
	}
	_ = queue.SetTaskStatus(task.TaskID, status)
	_ = queue.StoreTaskResult(task.TaskID, result)
}

// runTask executes the task and returns the status and result to report to
// pollers. A job whose processing failed reports failed even though the run
// itself returned no error; the failure lives on the media record.
func (w *Worker) runTask(ctx context.Context, task *queue.TaskPayload) (string, map[string]any) {
	switch task.TaskType {
	case queue.TaskTypeProcessMedia:
		mediaID, ok := task.Data["media_id"].(string)
		if !ok || mediaID == "" {
			return "failed", map[string]any{"error": errMissingMediaID.Error()}
		}
		rec, err := w.jobs.Run(ctx, mediaID)
		if err != nil {
			return "failed", map[string]any{"media_id": mediaID, "error": err.Error()}
		}
		return taskCompletion(rec)
	default:
		slog.Warn("unknown task type", "task_id", task.TaskID, "type", task.TaskType)
		return "failed", map[string]any{"error": "unknown task type " + task.TaskType}
	}
}

// taskCompletion maps a finished job record onto the task status and result.
func taskCompletion(rec *models.MediaRecord) (string, map[string]any) {
	result := map[string]any{
		"media_id": rec.ID,
		"status":   string(rec.Status),
	}
	if rec.Status == models.StatusFailed {
		result["error"] = rec.ProcessingError
		return "failed", result
	}
	return "completed", result
}
