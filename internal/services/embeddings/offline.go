package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// OfflineProvider produces deterministic embeddings without network access by
// hashing token n-grams into a fixed-dimension vector. Identical text always
// yields the identical vector, so dedup and retrieval behave reproducibly in
// development and tests. Vectors are L2-normalized.
type OfflineProvider struct {
	dimension int
}

// NewOfflineProvider creates an offline provider with the given dimension.
func NewOfflineProvider(dimension int) *OfflineProvider {
	return &OfflineProvider{dimension: dimension}
}

// Embed hashes unigrams and bigrams into the vector. Bigrams carry half the
// unigram weight so word order contributes without dominating.
func (p *OfflineProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimension)
	tokens := tokenize(text)

	for _, tok := range tokens {
		vec[p.bucket(tok)] += 1.0
	}
	for i := 0; i+1 < len(tokens); i++ {
		vec[p.bucket(tokens[i]+" "+tokens[i+1])] += 0.5
	}

	normalize(vec)
	return vec, nil
}

// ModelName identifies the provider.
func (p *OfflineProvider) ModelName() string { return "offline-hash" }

// HealthCheck always succeeds; the provider has no external dependency.
func (p *OfflineProvider) HealthCheck(_ context.Context) error { return nil }

func (p *OfflineProvider) bucket(token string) int {
	h := fnv.New32a()
	h.Write([]byte(token))
	return int(h.Sum32()) % p.dimension
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
