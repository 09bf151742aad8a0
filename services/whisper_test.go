package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentConfidence(t *testing.T) {
	tests := []struct {
		name     string
		segments []TranscriptSegment
		want     float64
	}{
		{"no segments", nil, 0},
		{"certain", []TranscriptSegment{{AvgLogProb: 0}}, 1},
		{"typical", []TranscriptSegment{{AvgLogProb: -0.2}, {AvgLogProb: -0.4}}, 0.7},
		{"clamped low", []TranscriptSegment{{AvgLogProb: -3.5}}, 0},
		{"mixed with clamp", []TranscriptSegment{{AvgLogProb: -2}, {AvgLogProb: 0}}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, segmentConfidence(tt.segments), 1e-9)
		})
	}
}

func TestRetryDelayCapped(t *testing.T) {
	assert.Equal(t, time.Second, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
}

func TestTranscribeParsesVerboseJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		json.NewEncoder(w).Encode(map[string]any{
			"text":     "hello there",
			"language": "en",
			"segments": []map[string]any{
				{"start": 0.0, "end": 1.2, "text": "hello there", "avg_logprob": -0.25},
			},
		})
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("fake audio"), 0o644))

	c := &WhisperClient{baseURL: srv.URL, model: "whisper-1", client: srv.Client(), maxRetries: 0}
	transcript, err := c.Transcribe(context.Background(), audio)
	require.NoError(t, err)

	assert.Equal(t, "hello there", transcript.Text)
	assert.Equal(t, "en", transcript.Language)
	assert.InDelta(t, 0.75, transcript.Confidence, 1e-9)
	assert.Len(t, transcript.Segments, 1)
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("fake audio"), 0o644))

	c := &WhisperClient{baseURL: srv.URL, model: "whisper-1", client: srv.Client(), maxRetries: 0}
	_, err := c.Transcribe(context.Background(), audio)
	assert.Error(t, err)
}
