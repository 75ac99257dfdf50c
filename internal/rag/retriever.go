package rag

import (
	"context"
	"fmt"
)

// DefaultRetriever implements the Retriever interface by combining an Embedder
// and a VectorStore. It embeds the query at retrieval time and delegates
// similarity search to the store.
type DefaultRetriever struct {
	// Embedder converts query text to a dense vector. Must not be nil.
	Embedder Embedder

	// Store performs the vector similarity search. Must not be nil.
	Store VectorStore

	// TopK is the number of results to return when Retrieve is called with
	// topK <= 0. Zero means 4.
	TopK int
}

// Retrieve embeds the query and returns the top-k most relevant chunks.
// If topK is 0 the retriever's configured TopK is used.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		topK = r.TopK
	}
	if topK <= 0 {
		topK = 4
	}

	embeddings, err := r.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	chunks, err := r.Store.Search(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return chunks, nil
}
