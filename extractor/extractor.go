// Package extractor runs one or more text-extraction engines per media kind
// and selects the best result by confidence. Individual engine failures
// degrade quality, never availability: extraction as a whole fails only when
// the media itself cannot be opened or decoded.
package extractor

import (
	"context"
	"log/slog"
	"os"

	"github.com/mediaforge/media-rag/models"
	"github.com/mediaforge/media-rag/services"
)

// Outcome is one engine's result. A failed engine carries Err and counts as
// confidence 0 with empty text during selection.
type Outcome struct {
	Engine     string         `json:"engine"`
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Err        error          `json:"-"`
}

// Succeeded reports whether the engine produced a usable result.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// Engine extracts text from a media file. Confidence must be normalized to
// [0,1] so outcomes are comparable across engines of the same media kind.
type Engine interface {
	Name() string
	Extract(ctx context.Context, path string) Outcome
}

// SelectBest reduces an ordered list of outcomes to the highest-confidence
// one. Ties go to the earlier (first-registered) engine. Failed engines are
// treated as confidence 0. Returns a zero Outcome when the list is empty.
func SelectBest(outcomes []Outcome) Outcome {
	var best Outcome
	bestConf := -1.0
	for _, o := range outcomes {
		conf := o.Confidence
		if !o.Succeeded() {
			conf = 0
		}
		if conf > bestConf {
			best = o
			bestConf = conf
		}
	}
	if !best.Succeeded() {
		best.Text = ""
		best.Confidence = 0
	}
	return best
}

// Transcriber is the speech-to-text capability.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*services.Transcript, error)
}

// Generator is the text-generation capability used for lightweight text
// analysis after extraction.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Extraction is the pool's final product for one media file: the selected
// text plus aggregated structured metadata from every stage.
type Extraction struct {
	Text     string
	Metadata map[string]any
}

// Pool runs the extraction strategies for each media kind.
type Pool struct {
	imageEngines []Engine
	transcriber  Transcriber
	toolkit      MediaToolkit
	analyzer     *TextAnalyzer
	frameCount   int
}

// NewPool assembles an extraction pool. Image engine order matters: it is the
// tie-break priority during selection. frameCount is the number of evenly
// spaced video frames to sample (default 10).
func NewPool(imageEngines []Engine, transcriber Transcriber, toolkit MediaToolkit, analyzer *TextAnalyzer, frameCount int) *Pool {
	if frameCount <= 0 {
		frameCount = 10
	}
	return &Pool{
		imageEngines: imageEngines,
		transcriber:  transcriber,
		toolkit:      toolkit,
		analyzer:     analyzer,
		frameCount:   frameCount,
	}
}

// Process extracts text and metadata from the media file. The returned error
// is an *models.ExtractionError only when the file cannot be opened or
// decoded at all.
func (p *Pool) Process(ctx context.Context, mediaID, path string, kind models.MediaType) (*Extraction, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &models.ExtractionError{MediaID: mediaID, Err: err}
	}

	var (
		result *Extraction
		err    error
	)
	switch kind {
	case models.MediaTypeImage:
		result, err = p.processImage(ctx, path)
	case models.MediaTypeVideo:
		result, err = p.processVideo(ctx, path)
	case models.MediaTypeAudio:
		result, err = p.processAudio(ctx, path)
	default:
		return nil, &models.ValidationError{Reason: "unsupported media type: " + string(kind)}
	}
	if err != nil {
		return nil, &models.ExtractionError{MediaID: mediaID, Err: err}
	}

	// Secondary text analysis is best-effort: its failure is recorded inline
	// in the metadata and never fails the extraction.
	if result.Text != "" && p.analyzer != nil {
		result.Metadata["textAnalysis"] = p.analyzer.Analyze(ctx, result.Text)
	}
	return result, nil
}

// processImage fans out to every registered OCR engine and keeps the
// highest-confidence text. Engines run concurrently; outcomes are collected
// back in registration order so selection stays deterministic.
func (p *Pool) processImage(ctx context.Context, path string) (*Extraction, error) {
	outcomes := p.runImageEngines(ctx, path)
	best := SelectBest(outcomes)

	perEngine := make(map[string]any, len(outcomes))
	for _, o := range outcomes {
		entry := map[string]any{
			"text":       o.Text,
			"confidence": o.Confidence,
		}
		if o.Err != nil {
			entry["error"] = o.Err.Error()
			entry["confidence"] = 0.0
			entry["text"] = ""
		}
		perEngine[o.Engine] = entry
	}

	return &Extraction{
		Text: best.Text,
		Metadata: map[string]any{
			"ocr": map[string]any{
				"engines":    perEngine,
				"best":       best.Engine,
				"confidence": best.Confidence,
			},
		},
	}, nil
}

func (p *Pool) runImageEngines(ctx context.Context, path string) []Outcome {
	outcomes := make([]Outcome, len(p.imageEngines))
	done := make(chan int, len(p.imageEngines))
	for i, engine := range p.imageEngines {
		go func(idx int, eng Engine) {
			outcomes[idx] = eng.Extract(ctx, path)
			done <- idx
		}(i, engine)
	}
	for range p.imageEngines {
		idx := <-done
		if err := outcomes[idx].Err; err != nil {
			slog.Warn("ocr engine failed", "engine", outcomes[idx].Engine, "path", path, "error", err)
		}
	}
	return outcomes
}
