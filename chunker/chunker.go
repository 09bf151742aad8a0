package chunker

import (
	"strings"
	"unicode/utf8"
)

// Separators in priority order: paragraph break, line break, sentence-ending
// punctuation, whitespace. The empty string means a hard character cut.
var defaultSeparators = []string{"\n\n", "\n", "。", ". ", "! ", "? ", " ", ""}

const (
	DefaultTargetSize = 500
	DefaultOverlap    = 50
)

// Splitter splits text into chunks of at most targetSize runes (plus the
// overlap carried over from the preceding chunk). Splitting is deterministic:
// identical input and parameters always yield identical chunk boundaries.
type Splitter struct {
	targetSize int
	overlap    int
	separators []string
}

func NewSplitter(targetSize, overlap int) *Splitter {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= targetSize {
		overlap = targetSize / 2
	}
	return &Splitter{
		targetSize: targetSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split produces ordered chunks of the text. Adjacent chunks share the last
// overlap runes of the preceding chunk. Whitespace-only fragments are dropped;
// empty or whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	segments := splitRecursive(text, s.separators, s.targetSize)
	merged := mergeSegments(segments, s.targetSize)

	chunks := make([]string, 0, len(merged))
	for _, c := range merged {
		if strings.TrimSpace(c) == "" {
			continue
		}
		chunks = append(chunks, c)
	}
	if s.overlap == 0 || len(chunks) < 2 {
		return chunks
	}

	// Prefix each chunk after the first with the tail of its predecessor as
	// emitted, so the shared span between consecutive chunks is exactly the
	// configured overlap.
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		out[i] = tailRunes(out[i-1], s.overlap) + chunks[i]
	}
	return out
}

// splitRecursive breaks text into fragments no longer than target runes,
// trying each separator in priority order and falling back to the next when a
// fragment is still too long.
func splitRecursive(text string, separators []string, target int) []string {
	if utf8.RuneCountInString(text) <= target {
		return []string{text}
	}
	if len(separators) == 0 {
		return hardCut(text, target)
	}

	sep := separators[0]
	if sep == "" {
		return hardCut(text, target)
	}

	parts := splitKeepingSeparator(text, sep)
	if len(parts) == 1 {
		return splitRecursive(text, separators[1:], target)
	}

	var out []string
	for _, part := range parts {
		if utf8.RuneCountInString(part) <= target {
			out = append(out, part)
		} else {
			out = append(out, splitRecursive(part, separators[1:], target)...)
		}
	}
	return out
}

// splitKeepingSeparator splits on sep but keeps the separator attached to the
// preceding part, so concatenating the parts reconstructs the input.
func splitKeepingSeparator(text, sep string) []string {
	pieces := strings.Split(text, sep)
	if len(pieces) == 1 {
		return pieces
	}
	parts := make([]string, 0, len(pieces))
	for i, p := range pieces {
		if i < len(pieces)-1 {
			p += sep
		}
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func hardCut(text string, target int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > target {
		out = append(out, string(runes[:target]))
		runes = runes[target:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// mergeSegments greedily packs consecutive fragments into chunks of at most
// target runes. Fragments carry their separators, so no join string is needed.
func mergeSegments(segments []string, target int) []string {
	var out []string
	var current strings.Builder
	currentLen := 0

	for _, seg := range segments {
		segLen := utf8.RuneCountInString(seg)
		if currentLen > 0 && currentLen+segLen > target {
			out = append(out, current.String())
			current.Reset()
			currentLen = 0
		}
		current.WriteString(seg)
		currentLen += segLen
	}
	if currentLen > 0 {
		out = append(out, current.String())
	}
	return out
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
