package bm25

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testChunks() []Chunk {
	return []Chunk{
		{ID: "1", Content: "Rust is a systems programming language"},
		{ID: "2", Content: "Rust has memory safety guarantees"},
		{ID: "3", Content: "Python is a high-level language"},
	}
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	r := New(DefaultConfig)
	require.Empty(t, r.Retrieve("rust", nil, 10))
}

func TestRetrieveAllStopwordQuery(t *testing.T) {
	r := New(DefaultConfig)
	require.Empty(t, r.Retrieve("is a the", testChunks(), 10))
}

func TestRetrieveRanksBestMatchFirst(t *testing.T) {
	r := New(DefaultConfig)
	results := r.Retrieve("rust memory safety", testChunks(), 10)
	require.NotEmpty(t, results)
	require.Equal(t, "2", results[0].Chunk.ID)
}

func TestRetrieveRespectsTopK(t *testing.T) {
	r := New(DefaultConfig)
	results := r.Retrieve("language", testChunks(), 1)
	require.Len(t, results, 1)
}

func TestRetrieveExcludesZeroScoreDocuments(t *testing.T) {
	r := New(DefaultConfig)
	results := r.Retrieve("python", testChunks(), 10)
	require.Len(t, results, 1)
	require.Equal(t, "3", results[0].Chunk.ID)
}
