package extractor

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// VisionModel describes an image in natural language, reading any visible
// text.
type VisionModel interface {
	DescribeImage(ctx context.Context, imageBytes []byte, prompt string) (string, error)
}

const visionPrompt = "Read all visible text in this image and describe what is happening. " +
	"Transcribe the text exactly as it appears, then add a short description of the scene."

// VisionEngine extracts text through a multimodal vision model. The model
// reports no token-level score, so a calibrated fixed confidence is used for
// non-empty results; empty results score 0.
type VisionEngine struct {
	model      VisionModel
	confidence float64
}

func NewVisionEngine(model VisionModel, confidence float64) *VisionEngine {
	if confidence <= 0 || confidence > 1 {
		confidence = 0.8
	}
	return &VisionEngine{model: model, confidence: confidence}
}

func (e *VisionEngine) Name() string { return "vision" }

func (e *VisionEngine) Extract(ctx context.Context, path string) Outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return Outcome{Engine: e.Name(), Err: err}
	}

	text, err := e.model.DescribeImage(ctx, data, visionPrompt)
	if err != nil {
		return Outcome{Engine: e.Name(), Err: err}
	}

	text = strings.TrimSpace(text)
	conf := e.confidence
	if text == "" {
		conf = 0
	}
	return Outcome{Engine: e.Name(), Text: text, Confidence: conf}
}

// TesseractEngine shells out to the tesseract CLI and parses its TSV output.
// Word confidences (0-100) are averaged and normalized to [0,1].
type TesseractEngine struct {
	binary    string
	languages string
}

func NewTesseractEngine(languages string) *TesseractEngine {
	if languages == "" {
		languages = "eng"
	}
	return &TesseractEngine{binary: "tesseract", languages: languages}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Extract(ctx context.Context, path string) Outcome {
	cmd := exec.CommandContext(ctx, e.binary, path, "stdout", "-l", e.languages, "tsv")
	out, err := cmd.Output()
	if err != nil {
		return Outcome{Engine: e.Name(), Err: err}
	}

	text, confidence := parseTesseractTSV(string(out))
	return Outcome{Engine: e.Name(), Text: text, Confidence: confidence}
}

// parseTesseractTSV reconstructs line-broken text from word rows (level 5)
// and averages their confidences. Rows with conf -1 are layout markers and
// are skipped.
func parseTesseractTSV(tsv string) (string, float64) {
	var words []string
	var lines []string
	lastLineKey := ""
	confSum := 0.0
	confCount := 0

	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 {
			continue // header
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		lineKey := strings.Join(cols[1:5], ":")
		if lineKey != lastLineKey && len(words) > 0 {
			lines = append(lines, strings.Join(words, " "))
			words = words[:0]
		}
		lastLineKey = lineKey
		words = append(words, word)

		if conf, err := strconv.ParseFloat(cols[10], 64); err == nil && conf >= 0 {
			confSum += conf
			confCount++
		}
	}
	if len(words) > 0 {
		lines = append(lines, strings.Join(words, " "))
	}

	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if confCount == 0 || text == "" {
		return text, 0
	}
	return text, confSum / float64(confCount) / 100.0
}
