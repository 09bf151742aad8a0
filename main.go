package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mediaforge/media-rag/chunker"
	"github.com/mediaforge/media-rag/database"
	"github.com/mediaforge/media-rag/extractor"
	"github.com/mediaforge/media-rag/jobs"
	"github.com/mediaforge/media-rag/models"
	"github.com/mediaforge/media-rag/queue"
	"github.com/mediaforge/media-rag/rag"
	"github.com/mediaforge/media-rag/services"
	"github.com/mediaforge/media-rag/vectorstore"
	"github.com/rs/cors"
	"github.com/spf13/viper"
)

// mediaStore is the slice of database.MediaStore the handlers read through.
type mediaStore interface {
	Get(ctx context.Context, id string) (*models.MediaRecord, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, mediaType models.MediaType, status models.ProcessingStatus, limit, offset int) ([]models.MediaRecord, error)
}

type app struct {
	media     mediaStore
	jobs      *jobs.Service
	indexer   *rag.Indexer
	retriever *rag.Retriever
	composer  *rag.Composer
	pool      *extractor.Pool
	analyzer  *extractor.TextAnalyzer
}

func (a *app) uploadMedia(w http.ResponseWriter, r *http.Request) {
	maxSize := viper.GetInt64("MAX_FILE_SIZE")
	if maxSize <= 0 {
		maxSize = 100 << 20 // 100M
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "File too large or malformed upload: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Failed to upload file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	mediaType, ok := models.DetectMediaType(handler.Filename)
	if !ok {
		http.Error(w, "Unsupported file format: "+filepath.Ext(handler.Filename), http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	filename := id + filepath.Ext(handler.Filename)
	dir := filepath.Join("uploads", string(mediaType))
	if err := os.MkdirAll(dir, 0755); err != nil {
		http.Error(w, "Failed to create uploads directory", http.StatusInternalServerError)
		return
	}
	filePath := filepath.Join(dir, filename)

	out, err := os.Create(filePath)
	if err != nil {
		http.Error(w, "Failed to save file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer out.Close()
	size, err := io.Copy(out, file)
	if err != nil {
		http.Error(w, "Failed while copying file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	rec := &models.MediaRecord{
		ID:           id,
		Filename:     filename,
		OriginalName: handler.Filename,
		FilePath:     filePath,
		FileSize:     size,
		MimeType:     handler.Header.Get("Content-Type"),
		MediaType:    mediaType,
	}
	taskID, err := a.jobs.Submit(r.Context(), rec)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         rec.ID,
		"filename":   rec.Filename,
		"media_type": rec.MediaType,
		"status":     models.StatusPending,
		"task_id":    taskID,
		"message":    "File uploaded successfully. Processing started.",
	})
}

func (a *app) listMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 50)
	offset := intParam(q.Get("offset"), 0)

	recs, err := a.media.List(r.Context(),
		models.MediaType(q.Get("media_type")),
		models.ProcessingStatus(q.Get("status")),
		limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *app) getMedia(w http.ResponseWriter, r *http.Request) {
	rec, err := a.media.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *app) reprocessMedia(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	taskID, err := a.jobs.Reprocess(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Reprocessing started",
		"status":  models.StatusPending,
		"task_id": taskID,
	})
}

func (a *app) deleteMedia(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := a.media.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	// Deleting a record also purges its chunks from the vector store.
	if err := a.indexer.DeleteDocument(r.Context(), rec.DocumentID()); err != nil {
		writeError(w, err)
		return
	}
	if err := a.media.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if rec.FilePath != "" {
		os.Remove(rec.FilePath)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "File deleted successfully"})
}

func (a *app) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	results, err := a.retriever.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":         req.Query,
		"total_results": len(results),
		"results":       results,
	})
}

func (a *app) ragQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	writeJSON(w, http.StatusOK, a.composer.Answer(r.Context(), req.Query, req.TopK))
}

func (a *app) indexText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text       string         `json:"text"`
		DocumentID string         `json:"document_id"`
		Metadata   map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		http.Error(w, "document_id is required", http.StatusBadRequest)
		return
	}

	count, err := a.indexer.IndexDocument(r.Context(), req.Text, req.DocumentID, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": req.DocumentID,
		"chunks":      count,
	})
}

// analyzeMedia re-runs analysis for a completed file on demand. The result is
// returned to the caller without touching the stored record or its vectors.
func (a *app) analyzeMedia(w http.ResponseWriter, r *http.Request) {
	rec, err := a.media.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if rec.Status != models.StatusCompleted {
		writeError(w, &models.ValidationError{
			Reason: fmt.Sprintf("media %s is not completed (status %s)", rec.ID, rec.Status),
		})
		return
	}

	analysisType := r.URL.Query().Get("analysis_type")
	if analysisType == "" {
		analysisType = "comprehensive"
	}

	switch analysisType {
	case "comprehensive":
		result, err := a.pool.Process(r.Context(), rec.ID, rec.FilePath, rec.MediaType)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":            rec.ID,
			"analysis_type": analysisType,
			"text":          result.Text,
			"metadata":      result.Metadata,
		})
	case "text_only":
		if rec.ExtractedText == "" {
			writeError(w, &models.ValidationError{Reason: "no extracted text available for text_only analysis"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":            rec.ID,
			"analysis_type": analysisType,
			"analysis":      a.analyzer.Analyze(r.Context(), rec.ExtractedText),
		})
	default:
		writeError(w, &models.ValidationError{Reason: "analysis_type must be comprehensive or text_only"})
	}
}

func (a *app) taskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	status, err := queue.GetTaskStatus(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	result, _ := queue.GetTaskResult(taskID)
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"status":  status,
		"result":  result,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	var (
		notFound   *models.NotFoundError
		conflict   *models.ConflictError
		validation *models.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &conflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return def
	}
	return v
}

func buildApp() *app {
	ollama := services.NewOllamaClient()
	whisper := services.NewWhisperClient()

	engines := []extractor.Engine{
		extractor.NewVisionEngine(ollama, viper.GetFloat64("VISION_CONFIDENCE")),
		extractor.NewTesseractEngine(viper.GetString("TESSERACT_LANGUAGES")),
	}
	analyzer := extractor.NewTextAnalyzer(ollama)
	pool := extractor.NewPool(engines, whisper, extractor.NewFFmpegToolkit(), analyzer, viper.GetInt("VIDEO_FRAME_COUNT"))

	splitter := chunker.NewSplitter(viper.GetInt("CHUNK_SIZE"), viper.GetInt("CHUNK_OVERLAP"))
	store := vectorstore.NewPostgres(database.DB)
	indexer := rag.NewIndexer(splitter, ollama, store)
	retriever := rag.NewRetriever(ollama, store)
	composer := rag.NewComposer(retriever, ollama)

	media := database.NewMediaStore(database.DB)
	jobService := jobs.NewService(media, pool, indexer, queue.EnqueueMediaJob)

	return &app{
		media:     media,
		jobs:      jobService,
		indexer:   indexer,
		retriever: retriever,
		composer:  composer,
		pool:      pool,
		analyzer:  analyzer,
	}
}

func main() {
	database.Connect()
	queue.Initialize()

	a := buildApp()

	r := mux.NewRouter()
	r.HandleFunc("/upload", a.uploadMedia).Methods("POST")
	r.HandleFunc("/files", a.listMedia).Methods("GET")
	r.HandleFunc("/files/{id}", a.getMedia).Methods("GET")
	r.HandleFunc("/files/{id}/reprocess", a.reprocessMedia).Methods("POST")
	r.HandleFunc("/files/{id}/analyze", a.analyzeMedia).Methods("POST")
	r.HandleFunc("/files/{id}", a.deleteMedia).Methods("DELETE")
	r.HandleFunc("/search", a.search).Methods("POST")
	r.HandleFunc("/rag/query", a.ragQuery).Methods("POST")
	r.HandleFunc("/index", a.indexText).Methods("POST")
	r.HandleFunc("/tasks/{id}", a.taskStatus).Methods("GET")

	// Serve uploaded files for inspection
	uploadsDir := "./uploads"
	if _, err := os.Stat(uploadsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(uploadsDir, 0755); err != nil {
			log.Fatal("Failed to create uploads directory:", err)
		}
	}
	fs := http.FileServer(http.Dir(uploadsDir))
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", fs))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	handler := c.Handler(r)

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	fmt.Printf("Server running on port %s...\n", port)
	log.Fatal(http.ListenAndServe(":"+port, handler))
}

func init() {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("Warning: Error reading .env file:", err)
	}
	viper.AutomaticEnv()
}
