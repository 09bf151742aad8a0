package extractor

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mediaforge/media-rag/models"
	"github.com/mediaforge/media-rag/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	name string
	text string
	conf float64
	err  error
}

func (s stubEngine) Name() string { return s.name }

func (s stubEngine) Extract(context.Context, string) Outcome {
	return Outcome{Engine: s.name, Text: s.text, Confidence: s.conf, Err: s.err}
}

func TestSelectBestPicksHighestConfidence(t *testing.T) {
	best := SelectBest([]Outcome{
		{Engine: "a", Text: "low", Confidence: 0.2},
		{Engine: "b", Text: "high", Confidence: 0.9},
		{Engine: "c", Text: "mid", Confidence: 0.5},
	})
	assert.Equal(t, "b", best.Engine)
	assert.Equal(t, "high", best.Text)
}

func TestSelectBestTieGoesToFirstRegistered(t *testing.T) {
	best := SelectBest([]Outcome{
		{Engine: "first", Text: "one", Confidence: 0.7},
		{Engine: "second", Text: "two", Confidence: 0.7},
	})
	assert.Equal(t, "first", best.Engine)
}

func TestSelectBestFailedEnginesCountAsZero(t *testing.T) {
	best := SelectBest([]Outcome{
		{Engine: "broken", Text: "stale", Confidence: 0.99, Err: errors.New("boom")},
		{Engine: "ok", Text: "fresh", Confidence: 0.1},
	})
	assert.Equal(t, "ok", best.Engine)
	assert.Equal(t, "fresh", best.Text)
}

func TestSelectBestAllFailed(t *testing.T) {
	best := SelectBest([]Outcome{
		{Engine: "a", Err: errors.New("x")},
		{Engine: "b", Err: errors.New("y")},
	})
	assert.Empty(t, best.Text)
	assert.Zero(t, best.Confidence)
}

func TestSelectBestEmpty(t *testing.T) {
	best := SelectBest(nil)
	assert.Empty(t, best.Engine)
	assert.Zero(t, best.Confidence)
}

func TestLinspaceInclusiveEndpoints(t *testing.T) {
	points := linspace(0, 9, 10)
	require.Len(t, points, 10)
	assert.Equal(t, 0.0, points[0])
	assert.Equal(t, 9.0, points[9])
	assert.InDelta(t, 1.0, points[1]-points[0], 1e-9)
}

func TestLinspaceSinglePoint(t *testing.T) {
	assert.Equal(t, []float64{3}, linspace(3, 7, 1))
}

func TestProcessMissingFile(t *testing.T) {
	pool := NewPool(nil, nil, nil, nil, 0)
	_, err := pool.Process(context.Background(), "m1", "/no/such/file.png", models.MediaTypeImage)
	require.Error(t, err)

	var extErr *models.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "m1", extErr.MediaID)
}

func TestProcessUnsupportedType(t *testing.T) {
	path := writeTempFile(t, "file.bin", []byte("data"))
	pool := NewPool(nil, nil, nil, nil, 0)

	_, err := pool.Process(context.Background(), "m1", path, models.MediaType("document"))
	var valErr *models.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestProcessImageSelectsBestEngine(t *testing.T) {
	path := writeTempFile(t, "pic.png", []byte("not really a png"))
	engines := []Engine{
		stubEngine{name: "vision", text: "a street sign reading STOP", conf: 0.8},
		stubEngine{name: "tesseract", text: "STOP", conf: 0.93},
	}
	pool := NewPool(engines, nil, nil, nil, 0)

	result, err := pool.Process(context.Background(), "m1", path, models.MediaTypeImage)
	require.NoError(t, err)
	assert.Equal(t, "STOP", result.Text)

	ocr := result.Metadata["ocr"].(map[string]any)
	assert.Equal(t, "tesseract", ocr["best"])
	assert.InDelta(t, 0.93, ocr["confidence"].(float64), 1e-9)

	perEngine := ocr["engines"].(map[string]any)
	assert.Len(t, perEngine, 2)
}

func TestProcessImageEngineFailureDegrades(t *testing.T) {
	path := writeTempFile(t, "pic.png", []byte("x"))
	engines := []Engine{
		stubEngine{name: "vision", err: errors.New("model offline")},
		stubEngine{name: "tesseract", text: "hello", conf: 0.5},
	}
	pool := NewPool(engines, nil, nil, nil, 0)

	result, err := pool.Process(context.Background(), "m1", path, models.MediaTypeImage)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)

	ocr := result.Metadata["ocr"].(map[string]any)
	visionEntry := ocr["engines"].(map[string]any)["vision"].(map[string]any)
	assert.Equal(t, "model offline", visionEntry["error"])
	assert.Equal(t, 0.0, visionEntry["confidence"])
}

// fakeToolkit simulates a media file with a known duration and audio track.
// Extracted frames and audio are written as real files so downstream stages
// can open them.
type fakeToolkit struct {
	duration   float64
	hasAudio   bool
	frameCalls []float64
}

func (f *fakeToolkit) Duration(context.Context, string) (float64, error) {
	return f.duration, nil
}

func (f *fakeToolkit) ExtractFrame(_ context.Context, _ string, ts float64, outPath string) error {
	f.frameCalls = append(f.frameCalls, ts)
	return os.WriteFile(outPath, []byte("frame"), 0o644)
}

func (f *fakeToolkit) HasAudioTrack(context.Context, string) (bool, error) {
	return f.hasAudio, nil
}

func (f *fakeToolkit) ExtractAudio(_ context.Context, _ string, outPath string) error {
	return writeSineWav(outPath, 16000, 0.5, 440, 0.4)
}

type stubTranscriber struct {
	transcript *services.Transcript
	err        error
}

func (s stubTranscriber) Transcribe(context.Context, string) (*services.Transcript, error) {
	return s.transcript, s.err
}

func TestProcessVideoCombinesTranscriptAndFrames(t *testing.T) {
	path := writeTempFile(t, "clip.mp4", []byte("mp4"))
	toolkit := &fakeToolkit{duration: 9, hasAudio: true}
	engines := []Engine{stubEngine{name: "vision", text: "slide text", conf: 0.8}}
	transcriber := stubTranscriber{transcript: &services.Transcript{
		Text:       "welcome to the talk",
		Language:   "en",
		Confidence: 0.91,
	}}
	pool := NewPool(engines, transcriber, toolkit, nil, 3)

	result, err := pool.Process(context.Background(), "m1", path, models.MediaTypeVideo)
	require.NoError(t, err)

	// transcript leads, frame texts follow in timestamp order
	assert.Equal(t, "welcome to the talk slide text slide text slide text", result.Text)
	assert.Equal(t, []float64{0, 4.5, 9}, toolkit.frameCalls)

	info := result.Metadata["video_info"].(map[string]any)
	assert.Equal(t, 9.0, info["duration"])
	assert.Equal(t, true, info["has_audio"])
	assert.Equal(t, 3, info["frames_sampled"])

	transcript := result.Metadata["transcript"].(map[string]any)
	assert.Equal(t, "welcome to the talk", transcript["text"])
}

func TestProcessVideoWithoutAudio(t *testing.T) {
	path := writeTempFile(t, "clip.mp4", []byte("mp4"))
	toolkit := &fakeToolkit{duration: 4, hasAudio: false}
	engines := []Engine{stubEngine{name: "vision", text: "", conf: 0.8}}
	pool := NewPool(engines, nil, toolkit, nil, 2)

	result, err := pool.Process(context.Background(), "m1", path, models.MediaTypeVideo)
	require.NoError(t, err)
	assert.Empty(t, result.Text)
	assert.NotContains(t, result.Metadata, "transcript")
}

func TestProcessAudioTranscriptionFailureDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, writeSineWav(path, 16000, 0.5, 220, 0.4))

	pool := NewPool(nil, stubTranscriber{err: errors.New("whisper down")}, &fakeToolkit{}, nil, 0)
	result, err := pool.Process(context.Background(), "m1", path, models.MediaTypeAudio)
	require.NoError(t, err)

	assert.Empty(t, result.Text)
	transcript := result.Metadata["transcript"].(map[string]any)
	assert.Equal(t, "whisper down", transcript["error"])
	assert.Contains(t, result.Metadata, "audio_analysis")
}

func TestAnalyzeWavDescriptors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	amplitude := 0.5
	require.NoError(t, writeSineWav(path, 16000, 1.0, 440, amplitude))

	analysis, err := AnalyzeWav(path)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, analysis.Duration, 0.01)
	// RMS of a sine wave is amplitude/sqrt(2)
	assert.InDelta(t, amplitude/math.Sqrt2, analysis.RMSEnergy, 0.02)
	assert.InDelta(t, 440, analysis.SpectralCentroid, 60)
	// a steady tone is one continuous active segment
	assert.Equal(t, 1, analysis.SpeechSegments)
	assert.InDelta(t, 1.0, analysis.SpeechDuration, 0.1)
}

func TestAnalyzeWavRejectsGarbage(t *testing.T) {
	path := writeTempFile(t, "bad.wav", []byte("definitely not riff"))
	_, err := AnalyzeWav(path)
	assert.Error(t, err)
}

type stubGenerator struct {
	reply string
	err   error
}

func (s stubGenerator) Generate(context.Context, string) (string, error) {
	return s.reply, s.err
}

func TestTextAnalyzerCounts(t *testing.T) {
	a := NewTextAnalyzer(stubGenerator{reply: "positive"})
	result := a.Analyze(context.Background(), "Hello world. How are you? Fine!")

	stats := result["stats"].(map[string]any)
	assert.Equal(t, 6, stats["word_count"])
	assert.Equal(t, 3, stats["sentence_count"])
	assert.Equal(t, "positive", result["sentiment"])
}

func TestTextAnalyzerUnknownLabelFallsBackToNeutral(t *testing.T) {
	a := NewTextAnalyzer(stubGenerator{reply: "I think it is quite upbeat overall"})
	result := a.Analyze(context.Background(), "some text")
	assert.Equal(t, "neutral", result["sentiment"])
}

func TestTextAnalyzerNormalizesLabel(t *testing.T) {
	a := NewTextAnalyzer(stubGenerator{reply: "  Negative.  "})
	result := a.Analyze(context.Background(), "some text")
	assert.Equal(t, "negative", result["sentiment"])
}

func TestTextAnalyzerGeneratorFailure(t *testing.T) {
	a := NewTextAnalyzer(stubGenerator{err: errors.New("model offline")})
	result := a.Analyze(context.Background(), "some text")

	assert.Equal(t, "model offline", result["sentiment_error"])
	assert.NotContains(t, result, "sentiment")
	assert.Contains(t, result, "stats")
}

func TestParseTesseractTSV(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"4\t1\t1\t1\t1\t0\t0\t0\t10\t10\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t0\t0\t5\t5\t90\tHello\n" +
		"5\t1\t1\t1\t1\t2\t5\t0\t5\t5\t80\tworld\n" +
		"5\t1\t1\t1\t2\t1\t0\t5\t5\t5\t70\tagain\n"

	text, conf := parseTesseractTSV(tsv)
	assert.Equal(t, "Hello world\nagain", text)
	assert.InDelta(t, 0.8, conf, 1e-9)
}

func TestParseTesseractTSVEmpty(t *testing.T) {
	text, conf := parseTesseractTSV("level\t...\n")
	assert.Empty(t, text)
	assert.Zero(t, conf)
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// writeSineWav writes a mono 16-bit PCM wav with a pure tone.
func writeSineWav(path string, sampleRate int, seconds, freq, amplitude float64) error {
	n := int(float64(sampleRate) * seconds)
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*32767)))
	}

	var buf []byte
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+len(pcm)))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1) // mono
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate*2))
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pcm)))
	buf = append(buf, pcm...)

	return os.WriteFile(path, buf, 0o644)
}
