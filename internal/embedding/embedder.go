// Package embedding turns memory text into fixed-length vectors suitable for
// the graph's cosine similarity search. The embedder is a deterministic
// feature-hashing model: no network, no model files.
package embedding

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/JNZader/memgraph/internal/cache"
)

// DefaultDimension is the vector length used when none is configured.
const DefaultDimension = 256

// Feature weights and hash salts.
const (
	ngramWeight   = 0.3
	partWeight    = 0.5
	markerWeight  = 0.5
	minTokenLen   = 2
	ngramSize     = 3
	signHashSalt  = "_sign"
	ngramHashSalt = "ngram:"
)

var tokenPattern = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_]*|\p{N}+`)

// codeMarkers flag content that looks like source code so code memories
// cluster together.
var codeMarkers = map[string]*regexp.Regexp{
	"func":   regexp.MustCompile(`\b(func|def|fn|function)\s+\w+`),
	"type":   regexp.MustCompile(`\b(class|struct|interface|enum)\s+\w+`),
	"import": regexp.MustCompile(`\b(import|package|require|use)\s+`),
	"error":  regexp.MustCompile(`\b(err|error|exception|panic)\b`),
}

// Embedder generates embedding vectors for text content. It is safe for
// concurrent use.
type Embedder struct {
	dim       int
	stopwords map[string]bool
	cache     *cache.LRU[string, []float32]
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithCache keeps the vectors of the last maxEntries distinct texts.
func WithCache(maxEntries int) Option {
	return func(e *Embedder) {
		if maxEntries > 0 {
			e.cache = cache.NewLRU[string, []float32](maxEntries)
		}
	}
}

// New creates an embedder producing vectors of length dim. A non-positive
// dim selects DefaultDimension.
func New(dim int, opts ...Option) *Embedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	e := &Embedder{dim: dim, stopwords: defaultStopwords()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CacheStats returns the vector cache counters; ok is false when the
// embedder has no cache.
func (e *Embedder) CacheStats() (stats cache.Stats, ok bool) {
	if e.cache == nil {
		return cache.Stats{}, false
	}
	return e.cache.Stats(), true
}

// Dimension returns the length of the produced vectors.
func (e *Embedder) Dimension() int {
	return e.dim
}

// Embed generates an L2-normalized embedding for text. Text without any
// usable token yields the zero vector, which never matches a search.
//
// Features are:
//   - bag of words with feature hashing and log-scaled term frequency
//   - character trigrams for subword similarity
//   - camelCase and snake_case parts of identifiers
//   - code markers
func (e *Embedder) Embed(text string) []float32 {
	if e.cache == nil {
		return e.embed(text)
	}
	// Callers own the returned slice, so the cache hands out copies.
	if vec, ok := e.cache.Get(text); ok {
		return append([]float32(nil), vec...)
	}
	vec := e.embed(text)
	e.cache.Set(text, append([]float32(nil), vec...))
	return vec
}

func (e *Embedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)

	counts := make(map[string]int)
	parts := make(map[string][]string)
	for _, token := range e.tokenize(text) {
		lower := strings.ToLower(token)
		counts[lower]++
		if _, seen := parts[lower]; !seen {
			parts[lower] = identifierParts(token)
		}
	}
	if len(counts) == 0 {
		return vec
	}

	for token, count := range counts {
		if e.stopwords[token] {
			continue
		}
		weight := float32(1 + math.Log(float64(count)))
		vec[e.index(token)] += e.sign(token) * weight

		// Identifier parts land on the same slots as the plain words.
		for _, part := range parts[token] {
			vec[e.index(part)] += e.sign(part) * partWeight
		}
		if len(token) >= ngramSize {
			for i := 0; i <= len(token)-ngramSize; i++ {
				vec[e.index(ngramHashSalt+token[i:i+ngramSize])] += ngramWeight
			}
		}
	}

	lower := strings.ToLower(text)
	for name, pattern := range codeMarkers {
		if pattern.MatchString(lower) {
			vec[e.index("code:"+name)] += markerWeight
		}
	}

	normalize(vec)
	return vec
}

// EmbedBatch generates embeddings for multiple texts.
func (e *Embedder) EmbedBatch(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.Embed(text)
	}
	return out
}

// tokenize keeps the original case so identifierParts can see camelCase
// boundaries.
func (e *Embedder) tokenize(text string) []string {
	matches := tokenPattern.FindAllString(text, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if len([]rune(m)) < minTokenLen {
			continue
		}
		tokens = append(tokens, m)
	}
	return tokens
}

func (e *Embedder) index(feature string) int {
	return int(hash(feature) % uint64(e.dim))
}

func (e *Embedder) sign(token string) float32 {
	if hash(token+signHashSalt)%2 == 1 {
		return -1
	}
	return 1
}

func hash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// identifierParts splits camelCase and snake_case identifiers into their
// lowercase words. Plain words return nil.
func identifierParts(token string) []string {
	var parts []string
	for _, piece := range strings.Split(token, "_") {
		parts = append(parts, splitCamel(piece)...)
	}
	if len(parts) <= 1 {
		return nil
	}
	return parts
}

func splitCamel(s string) []string {
	var words []string
	var current strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 && current.Len() > 0 {
			words = append(words, strings.ToLower(current.String()))
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		words = append(words, strings.ToLower(current.String()))
	}
	return words
}

func defaultStopwords() map[string]bool {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"or", "that", "the", "to", "was", "were", "will", "with",
		"this", "but", "they", "have", "had", "what", "when", "where",
		"who", "which", "why", "how", "all", "each", "every", "both",
		"few", "more", "most", "other", "some", "such", "no", "nor",
		"not", "only", "own", "same", "so", "than", "too", "very",
		"can", "just", "should", "now", "if", "then", "else",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
