package bm25

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRetrieveResultsAreSortedDescendingAndWithinTopK is the §8 property
// for the BM25 retriever: for any 8-chunk corpus drawn from a fixed
// vocabulary and any topK in [0, 10], the results for the query
// "rust memory" never exceed a positive topK, are sorted by non-increasing
// score, and all have a positive score.
func TestRetrieveResultsAreSortedDescendingAndWithinTopK(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	wordGen := gen.OneConstOf("rust", "python", "go", "memory", "safety", "language", "systems", "programming")

	properties.Property("results are topK-bounded and score-sorted", prop.ForAll(
		func(wordsPerDoc []string, topK int) bool {
			chunks := make([]Chunk, len(wordsPerDoc))
			for i, w := range wordsPerDoc {
				chunks[i] = Chunk{ID: fmt.Sprintf("c%d", i), Content: w + " " + w + " language"}
			}
			r := New(DefaultConfig)
			results := r.Retrieve("rust memory", chunks, topK)

			if topK > 0 && len(results) > topK {
				return false
			}
			for i := 1; i < len(results); i++ {
				if results[i].Score > results[i-1].Score {
					return false
				}
			}
			for _, res := range results {
				if res.Score <= 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, wordGen),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
