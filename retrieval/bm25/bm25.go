// Package bm25 implements the BM25 keyword reranker of spec §4.I: tokenize,
// compute IDF, and score chunks by term frequency against the corpus
// average document length.
package bm25

import (
	"math"
	"sort"
	"strings"
)

// Config tunes the BM25 formula. Defaults (K1=1.5, B=0.75) match the
// teacher's documented values.
type Config struct {
	K1 float64
	B  float64
}

// DefaultConfig matches the reference implementation's defaults.
var DefaultConfig = Config{K1: 1.5, B: 0.75}

// Chunk is one scoreable unit of text.
type Chunk struct {
	ID      string
	Content string
}

// Scored pairs a Chunk with its BM25 score.
type Scored struct {
	Chunk Chunk
	Score float64
}

// stopwords is a fixed set of common English function words excluded from
// scoring, per spec §4.I's tokenize step. No pack repo ships a stopword
// list library, so this is a hand-rolled stdlib set.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "and": true,
	"or": true, "but": true, "if": true, "it": true, "its": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "with": true, "as": true,
	"by": true, "at": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "you": true, "he": true, "she": true,
	"they": true, "we": true, "has": true, "have": true, "had": true,
	"do": true, "does": true, "did": true, "not": true, "no": true,
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Retriever scores a fixed set of chunks against a query using BM25.
type Retriever struct {
	cfg Config
}

// New constructs a Retriever with custom K1/B parameters.
func New(cfg Config) *Retriever {
	if cfg.K1 == 0 && cfg.B == 0 {
		cfg = DefaultConfig
	}
	return &Retriever{cfg: cfg}
}

func idf(n int, df int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

func termFreq(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

// Retrieve scores every chunk against query and returns the top-k by
// descending BM25 score, excluding zero-score documents.
func (r *Retriever) Retrieve(query string, chunks []Chunk, topK int) []Scored {
	if len(chunks) == 0 {
		return nil
	}
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	docTokens := make([][]string, len(chunks))
	docFreq := make(map[string]int)
	totalLen := 0
	for i, c := range chunks {
		docTokens[i] = tokenize(c.Content)
		totalLen += len(docTokens[i])
		seen := make(map[string]bool)
		for _, tok := range docTokens[i] {
			if !seen[tok] {
				seen[tok] = true
				docFreq[tok]++
			}
		}
	}
	avgDocLen := float64(totalLen) / float64(len(chunks))

	n := len(chunks)
	idfByTerm := make(map[string]float64, len(queryTerms))
	for _, term := range queryTerms {
		idfByTerm[term] = idf(n, docFreq[term])
	}

	scored := make([]Scored, 0, len(chunks))
	for i, c := range chunks {
		tf := termFreq(docTokens[i])
		docLen := float64(len(docTokens[i]))
		var score float64
		for _, term := range queryTerms {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			denom := f + r.cfg.K1*(1-r.cfg.B+r.cfg.B*docLen/avgDocLen)
			score += idfByTerm[term] * (f * (r.cfg.K1 + 1)) / denom
		}
		if score > 0 {
			scored = append(scored, Scored{Chunk: c, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
