package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
)

type fakeLLM struct {
	answer string
	err    error
	calls  int
	prompt string
}

func (f *fakeLLM) Chat(_ context.Context, messages []interfaces.Message) (string, error) {
	f.calls++
	for _, m := range messages {
		if m.Role == "user" {
			f.prompt = m.Content
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeLLM) ModelName() string                 { return "fake-model" }
func (f *fakeLLM) HealthCheck(context.Context) error { return nil }

func sampleResults(n int) []models.QueryResult {
	results := make([]models.QueryResult, n)
	for i := range results {
		results[i] = models.QueryResult{
			Article: &models.Article{
				ID:                string(rune('a' + i)),
				Title:             "Article title",
				NormalizedContent: "Some article content about markets.",
				Source:            "feed",
				PublishedAt:       time.Now(),
			},
		}
	}
	return results
}

func TestSynthesizeReturnsAnswer(t *testing.T) {
	llm := &fakeLLM{answer: "Banks reported strong results [1]."}
	syn := NewSynthesizer(llm, 2, arbor.NewLogger())

	answer := syn.Synthesize(context.Background(), "banking results", sampleResults(4))
	require.NotNil(t, answer)

	assert.Equal(t, "Banks reported strong results [1].", answer.Answer)
	assert.Equal(t, "fake-model", answer.Model)
	assert.Len(t, answer.SourcesUsed, 2, "only top-K documents are cited")
	assert.Contains(t, llm.prompt, "Question: banking results")
}

func TestSynthesizeFailureIsNotAnError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("api down")}
	syn := NewSynthesizer(llm, 5, arbor.NewLogger())

	answer := syn.Synthesize(context.Background(), "banking results", sampleResults(2))
	assert.Nil(t, answer)
}

func TestSynthesizeSkipsEmptyResults(t *testing.T) {
	llm := &fakeLLM{answer: "unused"}
	syn := NewSynthesizer(llm, 5, arbor.NewLogger())

	answer := syn.Synthesize(context.Background(), "anything", nil)
	assert.Nil(t, answer)
	assert.Zero(t, llm.calls)
}

func TestSynthesizeNilReceiverSafe(t *testing.T) {
	var syn *Synthesizer
	assert.Nil(t, syn.Synthesize(context.Background(), "anything", sampleResults(1)))
}
