// Package sentiment classifies article text into a three-way financial
// sentiment: bullish, bearish, or neutral. Classification runs a weighted
// financial lexicon over a bounded leading window of the content and exposes
// the full probability distribution alongside the argmax label.
package sentiment

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/models"
)

// truncateChars bounds the classified window. The leading portion carries the
// most signal: title plus opening paragraphs.
const truncateChars = 2000

// lowConfidenceFloor marks results whose argmax probability is too close to a
// uniform distribution to trust.
const lowConfidenceFloor = 0.45

var bullishTerms = map[string]float64{
	"profit":      1.0,
	"profits":     1.0,
	"gain":        1.0,
	"gains":       1.0,
	"gained":      1.0,
	"surge":       1.5,
	"surges":      1.5,
	"surged":      1.5,
	"rally":       1.5,
	"rallied":     1.5,
	"record":      1.0,
	"beat":        1.0,
	"beats":       1.0,
	"upgrade":     1.5,
	"upgraded":    1.5,
	"growth":      1.0,
	"strong":      1.0,
	"rise":        1.0,
	"rises":       1.0,
	"rose":        1.0,
	"jump":        1.0,
	"jumps":       1.0,
	"jumped":      1.0,
	"higher":      1.0,
	"dividend":    0.5,
	"buyback":     0.5,
	"expansion":   0.5,
	"outperform":  1.5,
	"bullish":     1.5,
	"recovery":    1.0,
	"improved":    1.0,
	"improvement": 1.0,
}

var bearishTerms = map[string]float64{
	"loss":         1.0,
	"losses":       1.0,
	"decline":      1.0,
	"declines":     1.0,
	"declined":     1.0,
	"fall":         1.0,
	"falls":        1.0,
	"fell":         1.0,
	"drop":         1.0,
	"drops":        1.0,
	"dropped":      1.0,
	"plunge":       1.5,
	"plunges":      1.5,
	"plunged":      1.5,
	"slump":        1.5,
	"slumped":      1.5,
	"downgrade":    1.5,
	"downgraded":   1.5,
	"weak":         1.0,
	"miss":         1.0,
	"missed":       1.0,
	"fraud":        2.0,
	"probe":        1.0,
	"penalty":      1.0,
	"default":      1.5,
	"defaults":     1.5,
	"lower":        1.0,
	"layoffs":      1.0,
	"bearish":      1.5,
	"concern":      0.5,
	"concerns":     0.5,
	"pressure":     0.5,
	"underperform": 1.5,
}

// negators flip the polarity of the immediately following sentiment term.
var negators = map[string]bool{
	"not": true, "no": true, "never": true, "without": true,
}

// neutralPrior smooths the distribution so sparse evidence stays neutral.
const neutralPrior = 2.0

// Service classifies financial sentiment.
type Service struct {
	minContentLength int
	logger           arbor.ILogger
}

// NewService creates a classifier. Content shorter than minContentLength is
// never labeled.
func NewService(minContentLength int, logger arbor.ILogger) *Service {
	return &Service{minContentLength: minContentLength, logger: logger}
}

// Classify returns the sentiment of the content. Content below the minimum
// length yields an unset label rather than a fabricated one. Classification
// is pure and deterministic; it cannot fail.
func (s *Service) Classify(content string) *models.SentimentResult {
	if utf8.RuneCountInString(content) < s.minContentLength {
		return &models.SentimentResult{Label: models.SentimentUnset}
	}

	window := truncateWindow(content)

	bullish, bearish := scoreLexicon(window)

	// Smooth with the neutral prior and normalize to a distribution.
	total := bullish + bearish + neutralPrior
	dist := map[string]float64{
		"bullish": bullish / total,
		"bearish": bearish / total,
		"neutral": neutralPrior / total,
	}

	label, score := argmax(dist)
	result := &models.SentimentResult{
		Label:         label,
		Score:         score,
		Distribution:  dist,
		LowConfidence: score < lowConfidenceFloor,
	}

	s.logger.Debug().
		Str("label", string(result.Label)).
		Float64("score", result.Score).
		Bool("low_confidence", result.LowConfidence).
		Msg("Sentiment classified")

	return result
}

// Neutral returns the low-confidence fallback used when an upstream failure
// prevents real classification.
func Neutral() *models.SentimentResult {
	return &models.SentimentResult{
		Label:         models.SentimentNeutral,
		Score:         0.5,
		LowConfidence: true,
	}
}

// truncateWindow bounds the classified text to truncateChars characters. The
// bound is in runes so multibyte content (rupee signs, Devanagari) keeps its
// full character window.
func truncateWindow(text string) string {
	if len(text) <= truncateChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= truncateChars {
		return text
	}
	return string(runes[:truncateChars])
}

func scoreLexicon(text string) (bullish, bearish float64) {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for i, tok := range tokens {
		negated := i > 0 && negators[tokens[i-1]]

		if w, ok := bullishTerms[tok]; ok {
			if negated {
				bearish += w
			} else {
				bullish += w
			}
			continue
		}
		if w, ok := bearishTerms[tok]; ok {
			if negated {
				bullish += w
			} else {
				bearish += w
			}
		}
	}
	return bullish, bearish
}

func argmax(dist map[string]float64) (models.SentimentLabel, float64) {
	label := models.SentimentNeutral
	best := dist["neutral"]
	if dist["bullish"] > best {
		label = models.SentimentBullish
		best = dist["bullish"]
	}
	if dist["bearish"] > best {
		label = models.SentimentBearish
		best = dist["bearish"]
	}
	return label, best
}
