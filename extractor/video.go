package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// MediaToolkit wraps the local media tooling used to decode video files:
// probing duration, grabbing frames and demuxing audio tracks.
type MediaToolkit interface {
	Duration(ctx context.Context, path string) (float64, error)
	ExtractFrame(ctx context.Context, path string, timestamp float64, outPath string) error
	HasAudioTrack(ctx context.Context, path string) (bool, error)
	ExtractAudio(ctx context.Context, path string, outPath string) error
}

// FFmpegToolkit implements MediaToolkit with the ffmpeg/ffprobe binaries.
type FFmpegToolkit struct {
	ffmpeg  string
	ffprobe string
}

func NewFFmpegToolkit() *FFmpegToolkit {
	return &FFmpegToolkit{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
}

func (t *FFmpegToolkit) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration parse: %w", err)
	}
	return dur, nil
}

func (t *FFmpegToolkit) ExtractFrame(ctx context.Context, path string, timestamp float64, outPath string) error {
	cmd := exec.CommandContext(ctx, t.ffmpeg,
		"-y",
		"-ss", fmt.Sprintf("%.3f", timestamp),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg frame at %.3fs: %w: %s", timestamp, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (t *FFmpegToolkit) HasAudioTrack(ctx context.Context, path string) (bool, error) {
	cmd := exec.CommandContext(ctx, t.ffprobe,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path)
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("ffprobe audio streams: %w", err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

func (t *FFmpegToolkit) ExtractAudio(ctx context.Context, path string, outPath string) error {
	cmd := exec.CommandContext(ctx, t.ffmpeg,
		"-y",
		"-i", path,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg audio extract: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// processVideo samples evenly spaced frames, runs the image path on each, and
// transcribes the audio track when one exists. The document text is the
// transcript (if any) followed by the non-empty frame texts in timestamp
// order.
func (p *Pool) processVideo(ctx context.Context, path string) (*Extraction, error) {
	duration, err := p.toolkit.Duration(ctx, path)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "frames")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	timestamps := linspace(0, duration, p.frameCount)
	type frameText struct {
		Timestamp  float64 `json:"timestamp"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	frameResults := make([]frameText, 0, len(timestamps))
	var texts []string

	for i, ts := range timestamps {
		framePath := filepath.Join(tmpDir, fmt.Sprintf("frame_%03d.jpg", i))
		if err := p.toolkit.ExtractFrame(ctx, path, ts, framePath); err != nil {
			slog.Warn("frame extraction failed", "path", path, "timestamp", ts, "error", err)
			continue
		}
		frame, err := p.processImage(ctx, framePath)
		if err != nil {
			continue
		}
		best := frame.Metadata["ocr"].(map[string]any)
		conf, _ := best["confidence"].(float64)
		frameResults = append(frameResults, frameText{Timestamp: ts, Text: frame.Text, Confidence: conf})
		// Empty frame texts are dropped from the document, not kept as
		// placeholders.
		if strings.TrimSpace(frame.Text) != "" {
			texts = append(texts, frame.Text)
		}
	}

	metadata := map[string]any{
		"video_info": map[string]any{
			"duration":       duration,
			"frames_sampled": len(frameResults),
		},
		"frame_ocr": frameResults,
	}

	hasAudio, err := p.toolkit.HasAudioTrack(ctx, path)
	if err != nil {
		slog.Warn("audio stream probe failed", "path", path, "error", err)
		hasAudio = false
	}
	metadata["video_info"].(map[string]any)["has_audio"] = hasAudio

	if hasAudio {
		wavPath := filepath.Join(tmpDir, "audio.wav")
		if err := p.toolkit.ExtractAudio(ctx, path, wavPath); err != nil {
			slog.Warn("audio extraction failed", "path", path, "error", err)
		} else if audio, err := p.processAudio(ctx, wavPath); err != nil {
			slog.Warn("audio processing failed", "path", path, "error", err)
		} else {
			for k, v := range audio.Metadata {
				metadata[k] = v
			}
			if audio.Text != "" {
				texts = append([]string{audio.Text}, texts...)
			}
		}
	}

	return &Extraction{
		Text:     strings.Join(texts, " "),
		Metadata: metadata,
	}, nil
}

// linspace returns n evenly spaced values across [start, end] inclusive.
func linspace(start, end float64, n int) []float64 {
	if n <= 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}
