package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mediaforge/media-rag/chunker"
	"github.com/mediaforge/media-rag/database"
	"github.com/mediaforge/media-rag/extractor"
	"github.com/mediaforge/media-rag/jobs"
	"github.com/mediaforge/media-rag/queue"
	"github.com/mediaforge/media-rag/rag"
	"github.com/mediaforge/media-rag/services"
	"github.com/mediaforge/media-rag/vectorstore"
	"github.com/mediaforge/media-rag/worker"
	"github.com/spf13/viper"
)

func main() {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	viper.SetDefault("WORKER_COUNT", 4)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_PASSWORD", "")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("Warning: Error reading .env file:", err)
	}
	viper.AutomaticEnv()

	database.Connect()
	queue.Initialize()

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

	media := database.NewMediaStore(database.DB)
	jobService := jobs.NewService(media, pool, indexer, queue.EnqueueMediaJob)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	numWorkers := viper.GetInt("WORKER_COUNT")
	workers := worker.NewWorker(jobService, queue.MediaProcessingQueue, numWorkers)
	workers.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Stopping workers...")
	workers.Stop()
	log.Println("Workers stopped")
}
