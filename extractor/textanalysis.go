package extractor

import (
	"context"
	"fmt"
	"strings"
)

// TextAnalyzer attaches a sentiment label and basic counts to extracted text.
type TextAnalyzer struct {
	generator Generator
}

func NewTextAnalyzer(generator Generator) *TextAnalyzer {
	return &TextAnalyzer{generator: generator}
}

var sentimentLabels = map[string]struct{}{
	"positive": {},
	"negative": {},
	"neutral":  {},
}

// Analyze never fails: a sentiment failure is recorded as an inline error
// marker and the counts are always present.
func (a *TextAnalyzer) Analyze(ctx context.Context, text string) map[string]any {
	result := map[string]any{
		"stats": map[string]any{
			"character_count": len([]rune(text)),
			"word_count":      len(strings.Fields(text)),
			"sentence_count":  countSentences(text),
		},
	}

	label, err := a.sentiment(ctx, text)
	if err != nil {
		result["sentiment_error"] = err.Error()
	} else {
		result["sentiment"] = label
	}
	return result
}

func (a *TextAnalyzer) sentiment(ctx context.Context, text string) (string, error) {
	const maxSample = 2000
	runes := []rune(text)
	if len(runes) > maxSample {
		text = string(runes[:maxSample])
	}

	prompt := fmt.Sprintf(`Classify the sentiment of the following text.
Reply with exactly one word: positive, negative or neutral.

Text:
%s

Sentiment:`, text)

	raw, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.Trim(label, ".")
	if _, ok := sentimentLabels[label]; !ok {
		return "neutral", nil
	}
	return label, nil
}

func countSentences(text string) int {
	count := 0
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '。'
	}) {
		if strings.TrimSpace(part) != "" {
			count++
		}
	}
	return count
}
