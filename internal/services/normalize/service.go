// Package normalize cleans raw article text before it enters the pipeline:
// markup stripping, entity decoding, whitespace collapse, mojibake repair, and
// the minimum-content gate. Normalization is a pure transform with no side
// effects; rejection here means no record is ever created.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/models"
)

// Service normalizes raw article content.
type Service struct {
	minContentLength int
	mdConverter      *md.Converter
	logger           arbor.ILogger
}

// NewService creates a normalizer with the given minimum content length.
func NewService(minContentLength int, logger arbor.ILogger) *Service {
	return &Service{
		minContentLength: minContentLength,
		mdConverter:      md.NewConverter("", true, nil),
		logger:           logger,
	}
}

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	markdownRe   = regexp.MustCompile("[*_`#>\\[\\]]")
)

// mojibake repairs for the common UTF-8-read-as-Latin-1 sequences seen in
// feed content.
var mojibakeReplacer = strings.NewReplacer(
	"\u00e2\u20ac\u2122", "'",
	"\u00e2\u20ac\u02dc", "'",
	"\u00e2\u20ac\u0153", `"`,
	"\u00e2\u20ac\u009d", `"`,
	"\u00e2\u20ac\u201c", "-",
	"\u00e2\u20ac\u201d", "-",
	"\u00e2\u20ac\u00a6", "...",
	"\u00c2\u00a0", " ",
	"\u00a0", " ",
)

// Normalize cleans the raw article and returns the normalized content.
// Returns models.ErrInvalidInput when the title is empty or the cleaned
// content is shorter than the configured floor; the caller must not proceed
// to deduplication on error.
func (s *Service) Normalize(raw *models.RawArticle) (string, error) {
	if strings.TrimSpace(raw.Title) == "" {
		return "", fmt.Errorf("%w: title is empty", models.ErrInvalidInput)
	}

	content := s.clean(raw.Content)

	// Short feed bodies often repeat the title; combine so the dedup
	// embedding sees the full signal.
	combined := strings.TrimSpace(raw.Title)
	if content != "" {
		combined = combined + "\n\n" + content
	}

	// The floor counts characters, not bytes, so multibyte text is not
	// over-credited.
	if n := utf8.RuneCountInString(combined); n < s.minContentLength {
		return "", fmt.Errorf("%w: content too short (%d chars, minimum %d)",
			models.ErrInvalidInput, n, s.minContentLength)
	}

	return combined, nil
}

// clean strips markup and repairs encoding damage in one pass.
func (s *Service) clean(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	if strings.Contains(content, "<") {
		content = s.stripMarkup(content)
	}

	content = mojibakeReplacer.Replace(content)
	content = whitespaceRe.ReplaceAllString(content, " ")

	return strings.TrimSpace(content)
}

// stripMarkup converts HTML to markdown, drops non-content elements via
// goquery first, then flattens the markdown syntax to plain text. Falls back
// to regex tag stripping when conversion fails or produces empty output.
func (s *Service) stripMarkup(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err == nil {
		doc.Find("script, style, nav, header, footer, aside, iframe").Remove()
		if html, err := doc.Html(); err == nil {
			content = html
		}
	}

	converted, err := s.mdConverter.ConvertString(content)
	if err != nil || strings.TrimSpace(converted) == "" {
		if s.logger != nil {
			s.logger.Debug().Err(err).Msg("HTML to markdown conversion fell back to tag stripping")
		}
		return decodeEntities(tagRe.ReplaceAllString(content, " "))
	}

	// Markdown syntax carries no signal for embeddings or entity matching.
	return markdownRe.ReplaceAllString(converted, "")
}

// decodeEntities handles the basic HTML entity set for the fallback path.
func decodeEntities(content string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&nbsp;", " ",
	)
	return replacer.Replace(content)
}
