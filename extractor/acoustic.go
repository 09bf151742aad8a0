package extractor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// AcousticAnalysis holds lightweight descriptors computed directly from PCM
// samples: overall energy, a spectral centroid estimate, a tempo estimate
// from energy onsets, and energy-based voice-activity segmentation.
type AcousticAnalysis struct {
	Duration         float64
	Tempo            float64
	SpectralCentroid float64
	RMSEnergy        float64
	SpeechSegments   int
	SpeechDuration   float64
}

const analysisFrameSize = 1024

// AnalyzeWav decodes a 16-bit PCM wav file and computes acoustic descriptors.
func AnalyzeWav(path string) (*AcousticAnalysis, error) {
	samples, sampleRate, err := readWav(path)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.New("wav file contains no samples")
	}

	duration := float64(len(samples)) / float64(sampleRate)
	frames := frameEnergies(samples)

	analysis := &AcousticAnalysis{
		Duration:         duration,
		RMSEnergy:        rms(samples),
		SpectralCentroid: spectralCentroid(samples, sampleRate),
		Tempo:            estimateTempo(frames, sampleRate),
	}
	analysis.SpeechSegments, analysis.SpeechDuration = voiceActivity(frames, sampleRate)
	return analysis, nil
}

// readWav parses a RIFF/WAVE file with 16-bit PCM samples, averaging
// channels down to mono.
func readWav(path string) ([]float64, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, errors.New("not a RIFF/WAVE file")
	}

	var (
		sampleRate    int
		numChannels   int
		bitsPerSample int
		pcm           []byte
	)
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, errors.New("malformed fmt chunk")
			}
			numChannels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+chunkSize]
		}
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if sampleRate == 0 || numChannels == 0 || pcm == nil {
		return nil, 0, errors.New("missing fmt or data chunk")
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
	}

	frameBytes := 2 * numChannels
	n := len(pcm) / frameBytes
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for ch := 0; ch < numChannels; ch++ {
			off := i*frameBytes + ch*2
			sum += float64(int16(binary.LittleEndian.Uint16(pcm[off : off+2])))
		}
		samples[i] = sum / float64(numChannels) / 32768.0
	}
	return samples, sampleRate, nil
}

func rms(samples []float64) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func frameEnergies(samples []float64) []float64 {
	var energies []float64
	for i := 0; i+analysisFrameSize <= len(samples); i += analysisFrameSize {
		energies = append(energies, rms(samples[i:i+analysisFrameSize]))
	}
	if len(energies) == 0 {
		energies = []float64{rms(samples)}
	}
	return energies
}

// spectralCentroid estimates the dominant frequency weighting via a DFT over
// the first analysis window (zero-padded if shorter).
func spectralCentroid(samples []float64, sampleRate int) float64 {
	n := analysisFrameSize
	window := make([]float64, n)
	copy(window, samples)

	weighted := 0.0
	total := 0.0
	for k := 1; k < n/2; k++ {
		var re, im float64
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			re += window[t] * math.Cos(angle)
			im += window[t] * math.Sin(angle)
		}
		mag := math.Hypot(re, im)
		freq := float64(k) * float64(sampleRate) / float64(n)
		weighted += freq * mag
		total += mag
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// estimateTempo counts energy onsets (frames that jump well above the running
// mean) and converts the onset rate to beats per minute.
func estimateTempo(energies []float64, sampleRate int) float64 {
	if len(energies) < 2 {
		return 0
	}
	mean := 0.0
	for _, e := range energies {
		mean += e
	}
	mean /= float64(len(energies))

	onsets := 0
	for i := 1; i < len(energies); i++ {
		if energies[i] > 1.5*mean && energies[i-1] <= 1.5*mean {
			onsets++
		}
	}
	totalSeconds := float64(len(energies)*analysisFrameSize) / float64(sampleRate)
	if totalSeconds == 0 {
		return 0
	}
	return float64(onsets) / totalSeconds * 60
}

// voiceActivity segments the signal into speech intervals using an energy
// threshold relative to the peak frame, returning the interval count and
// their total duration in seconds.
func voiceActivity(energies []float64, sampleRate int) (int, float64) {
	peak := 0.0
	for _, e := range energies {
		if e > peak {
			peak = e
		}
	}
	if peak == 0 {
		return 0, 0
	}
	// -20 dB below peak, the same default top_db cutoff librosa uses for
	// silence splitting.
	threshold := peak * math.Pow(10, -20.0/20.0)

	segments := 0
	activeFrames := 0
	inSegment := false
	for _, e := range energies {
		if e >= threshold {
			if !inSegment {
				segments++
				inSegment = true
			}
			activeFrames++
		} else {
			inSegment = false
		}
	}
	frameSeconds := float64(analysisFrameSize) / float64(sampleRate)
	return segments, float64(activeFrames) * frameSeconds
}
