package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
)

const (
	synthesisSystemPrompt = "You are a financial news analyst. Answer the question using only the " +
		"provided articles. Cite articles by their number. If the articles do not " +
		"contain the answer, say so plainly."

	// Per-document excerpt cap for the synthesis prompt.
	synthesisDocChars = 1200
)

// Synthesizer produces an optional natural-language answer from the top
// retrieval results. Any failure yields a nil answer, never an error.
type Synthesizer struct {
	llm    interfaces.LLMService
	topK   int
	logger arbor.ILogger
}

// NewSynthesizer wraps an LLM service for answer synthesis.
func NewSynthesizer(llm interfaces.LLMService, topK int, logger arbor.ILogger) *Synthesizer {
	if topK <= 0 {
		topK = 5
	}
	return &Synthesizer{llm: llm, topK: topK, logger: logger}
}

// Synthesize sends the query with the top-K documents to the LLM and returns
// the synthesized answer, or nil when the collaborator is absent, the result
// set is empty, or the call fails.
func (s *Synthesizer) Synthesize(ctx context.Context, queryText string, results []models.QueryResult) *models.SynthesizedAnswer {
	if s == nil || s.llm == nil || len(results) == 0 {
		return nil
	}

	docs := results
	if len(docs) > s.topK {
		docs = docs[:s.topK]
	}

	start := time.Now()
	answer, err := s.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: synthesisSystemPrompt},
		{Role: "user", Content: buildSynthesisPrompt(queryText, docs)},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Answer synthesis failed, returning retrieval results only")
		return nil
	}

	sources := make([]string, 0, len(docs))
	for _, r := range docs {
		sources = append(sources, r.Article.ID)
	}

	return &models.SynthesizedAnswer{
		Answer:      answer,
		SourcesUsed: sources,
		Latency:     time.Since(start),
		Model:       s.llm.ModelName(),
	}
}

func buildSynthesisPrompt(queryText string, docs []models.QueryResult) string {
	var b strings.Builder
	b.WriteString("Articles:\n\n")
	for i, r := range docs {
		content := r.Article.NormalizedContent
		if len(content) > synthesisDocChars {
			content = content[:synthesisDocChars]
		}
		fmt.Fprintf(&b, "[%d] %s (%s, %s)\n%s\n\n",
			i+1, r.Article.Title, r.Article.Source,
			r.Article.PublishedAt.Format("2006-01-02"), content)
	}
	fmt.Fprintf(&b, "Question: %s", queryText)
	return b.String()
}
