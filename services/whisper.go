package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Transcript is the result of a speech-to-text run. Confidence is the mean
// per-segment confidence normalized to [0,1].
type Transcript struct {
	Text       string
	Language   string
	Confidence float64
	Segments   []TranscriptSegment
}

type TranscriptSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	AvgLogProb float64 `json:"avg_logprob"`
}

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint
// (e.g. a local whisper server). Transient failures are retried with
// exponential backoff.
type WhisperClient struct {
	baseURL    string
	model      string
	client     *http.Client
	maxRetries int
}

func NewWhisperClient() *WhisperClient {
	baseURL := viper.GetString("WHISPER_URL")
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	model := viper.GetString("WHISPER_MODEL")
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperClient{
		baseURL:    baseURL,
		model:      model,
		client:     &http.Client{Timeout: 300 * time.Second},
		maxRetries: 3,
	}
}

// Transcribe uploads the audio file and returns its transcript.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt)):
			}
		}
		t, err := c.transcribeOnce(ctx, audioPath)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *WhisperClient) transcribeOnce(ctx context.Context, audioPath string) (*Transcript, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	_ = writer.WriteField("model", c.model)
	_ = writer.WriteField("response_format", "verbose_json")
	if err := writer.Close(); err != nil {
		return nil, err
	}

	url := c.baseURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call whisper at %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whisper transcription failed: %s", resp.Status)
	}

	var out struct {
		Text     string              `json:"text"`
		Language string              `json:"language"`
		Segments []TranscriptSegment `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse whisper response: %v", err)
	}

	return &Transcript{
		Text:       out.Text,
		Language:   out.Language,
		Confidence: segmentConfidence(out.Segments),
		Segments:   out.Segments,
	}, nil
}

// segmentConfidence converts whisper average log-probabilities to a [0,1]
// confidence. avg_logprob of 0 means certainty; values below -1 are treated
// as zero confidence.
func segmentConfidence(segments []TranscriptSegment) float64 {
	if len(segments) == 0 {
		return 0
	}
	sum := 0.0
	for _, seg := range segments {
		conf := 1 + seg.AvgLogProb
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		sum += conf
	}
	return sum / float64(len(segments))
}

func retryDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
