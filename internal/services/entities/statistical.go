package entities

import (
	"regexp"
	"strings"

	"github.com/ternarybob/nuntius/internal/models"
)

// eventPatterns maps a canonical financial event to its trigger phrases.
// Event matches carry confidence 0.9: phrase triggers are reliable but not
// proof the event is the article's subject.
var eventPatterns = map[string]*regexp.Regexp{
	"dividend":      regexp.MustCompile(`(?i)\b(dividend|interim dividend|final dividend)\b`),
	"buyback":       regexp.MustCompile(`(?i)\b(buyback|buy\s*back|share repurchase)\b`),
	"merger":        regexp.MustCompile(`(?i)\b(merger|acquisition|M&A|takeover|amalgamation)\b`),
	"ipo":           regexp.MustCompile(`(?i)\b(IPO|initial public offering|public issue)\b`),
	"earnings":      regexp.MustCompile(`(?i)\b(earnings|quarterly results|Q[1-4] results|annual results)\b`),
	"rate_change":   regexp.MustCompile(`(?i)\b(repo rate|interest rate|rate hike|rate cut|basis points|bps)\b`),
	"board_meeting": regexp.MustCompile(`(?i)\b(board meeting|board of directors)\b`),
	"stock_split":   regexp.MustCompile(`(?i)\b(stock split|share split|bonus issue)\b`),
	"rights_issue":  regexp.MustCompile(`(?i)\b(rights issue|preferential issue|QIP)\b`),
}

// orgSuffixPattern catches organizations outside the catalog by their legal
// suffix. These are low-confidence hints, never scored like catalog matches.
var orgSuffixPattern = regexp.MustCompile(`\b([A-Z][A-Za-z&]+(?:\s+[A-Z][A-Za-z&]+)*)\s+(?:Ltd|Limited|Corp|Corporation|Inc)\b`)

// StatisticalRecognizer extracts event entities from trigger phrases and
// off-catalog organization mentions from structural cues.
type StatisticalRecognizer struct{}

// NewStatisticalRecognizer creates a pattern-based recognizer.
func NewStatisticalRecognizer() *StatisticalRecognizer {
	return &StatisticalRecognizer{}
}

// Name identifies the recognizer.
func (r *StatisticalRecognizer) Name() string { return "statistical" }

// Recognize returns event entities and off-catalog organization hints.
func (r *StatisticalRecognizer) Recognize(text string) []models.Entity {
	var out []models.Entity

	for event, pattern := range eventPatterns {
		loc := pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		out = append(out, models.Entity{
			Type:       models.EntityTypeEvent,
			Value:      event,
			Confidence: 0.9,
			SpanStart:  loc[0],
			SpanEnd:    loc[1],
		})
	}

	seen := make(map[string]bool)
	for _, loc := range orgSuffixPattern.FindAllStringSubmatchIndex(text, -1) {
		name := strings.TrimSpace(text[loc[2]:loc[3]])
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.Entity{
			Type:       models.EntityTypeCompany,
			Value:      name,
			Confidence: 0.6,
			SpanStart:  loc[0],
			SpanEnd:    loc[1],
		})
	}

	return out
}
