package extractor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// processAudio transcribes speech and computes acoustic descriptors. The
// transcript is the document text; acoustic features and voice-activity
// segmentation are metadata only. A transcription failure degrades to empty
// text with an inline error marker rather than failing the job.
func (p *Pool) processAudio(ctx context.Context, path string) (*Extraction, error) {
	metadata := map[string]any{}
	text := ""

	transcript, err := p.transcriber.Transcribe(ctx, path)
	if err != nil {
		slog.Warn("transcription failed", "path", path, "error", err)
		metadata["transcript"] = map[string]any{"text": "", "error": err.Error()}
	} else {
		text = strings.TrimSpace(transcript.Text)
		metadata["transcript"] = map[string]any{
			"text":       transcript.Text,
			"language":   transcript.Language,
			"confidence": transcript.Confidence,
			"segments":   len(transcript.Segments),
		}
	}

	wavPath, cleanup, err := p.ensureWav(ctx, path)
	if err != nil {
		metadata["audio_analysis"] = map[string]any{"error": err.Error()}
		return &Extraction{Text: text, Metadata: metadata}, nil
	}
	defer cleanup()

	analysis, err := AnalyzeWav(wavPath)
	if err != nil {
		metadata["audio_analysis"] = map[string]any{"error": err.Error()}
	} else {
		metadata["audio_analysis"] = map[string]any{
			"duration":               analysis.Duration,
			"tempo":                  analysis.Tempo,
			"spectral_centroid_mean": analysis.SpectralCentroid,
			"rms_energy":             analysis.RMSEnergy,
		}
		metadata["speaker_analysis"] = map[string]any{
			"speech_segments":       analysis.SpeechSegments,
			"total_speech_duration": analysis.SpeechDuration,
		}
	}

	return &Extraction{Text: text, Metadata: metadata}, nil
}

// ensureWav returns a wav version of the audio file, transcoding through the
// media toolkit when the source is in another container.
func (p *Pool) ensureWav(ctx context.Context, path string) (string, func(), error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return path, func() {}, nil
	}
	tmp, err := os.CreateTemp("", "audio-*.wav")
	if err != nil {
		return "", nil, err
	}
	tmp.Close()
	if err := p.toolkit.ExtractAudio(ctx, path, tmp.Name()); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}
