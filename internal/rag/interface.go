// Package rag defines the interfaces for retrieval-augmented generation
// components: vector storage, chunk retrieval, and embedding.
// Concrete implementations (the local vecgo-backed store, etc.) satisfy these
// interfaces so the chain layer never depends on a specific backend.
package rag

import (
	"context"
)

// Chunk represents a unit of retrieved or stored knowledge: a contiguous
// span of text extracted from an uploaded document.
type Chunk struct {
	// Text is the raw text content of the chunk.
	Text string `json:"text"`

	// Source is the file name of the document this chunk came from.
	Source string `json:"source"`

	// Page is the 1-based page number the chunk starts on, or 0 if unknown.
	Page int `json:"page,omitempty"`

	// Score is the similarity score assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32 `json:"-"`
}

// VectorStore is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Add stores a batch of chunks with their pre-computed embeddings.
	// The embeddings slice must be parallel to chunks — embeddings[i] is the
	// vector for chunks[i].
	Add(ctx context.Context, chunks []Chunk, embeddings [][]float32) error

	// Search performs a semantic similarity search and returns the top-k
	// most relevant chunks for the given query embedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Chunk, error)

	// Count reports the number of chunks currently in the store.
	Count() int

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the chain to fetch relevant
// context for a given query. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant chunks for the given query.
	Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error)
}
