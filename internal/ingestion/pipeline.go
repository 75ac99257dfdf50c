// Package ingestion implements the document ingestion pipeline.
// It extracts text from uploaded PDF files, chunks the content, embeds each
// chunk, and adds the results to the vector store. The pipeline is invoked by
// the `ragbot ingest` CLI command and the document upload endpoint.
package ingestion

import (
	"context"
	"fmt"
	"io"

	"github.com/ragbot/ragbot-go/internal/loader"
	"github.com/ragbot/ragbot-go/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// EmbedBatchSize is the maximum number of chunks sent to the embedder in
	// one request. Defaults to 64 if zero.
	EmbedBatchSize int
}

// FileResult records the outcome of ingesting a single file.
type FileResult struct {
	// Name is the file name as reported to the user.
	Name string

	// Chunks is the number of chunks stored for this file.
	Chunks int

	// Err is the failure for this file, or nil on success.
	Err error
}

// Report summarises an ingestion run. One failed file never aborts the run;
// its error is recorded here and the remaining files are still processed.
type Report struct {
	// Files holds one result per input file, in input order.
	Files []FileResult

	// TotalChunks is the number of chunks stored across all successful files.
	TotalChunks int
}

// Failed returns the results for files that could not be ingested.
func (r *Report) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Succeeded reports the number of files ingested without error.
func (r *Report) Succeeded() int {
	n := 0
	for _, f := range r.Files {
		if f.Err == nil {
			n++
		}
	}
	return n
}

// Pipeline orchestrates the parse → chunk → embed → store flow for a set of
// uploaded documents.
type Pipeline struct {
	// loader extracts and chunks document text.
	loader *loader.Loader

	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(ld *loader.Loader, embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if ld == nil {
		return nil, fmt.Errorf("ingestion: loader must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}

	return &Pipeline{
		loader:   ld,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}, nil
}

// IngestFiles parses, chunks, embeds, and stores the given files. Files are
// processed sequentially; a failure in one file is recorded in the report and
// processing continues with the next. The returned error is non-nil only when
// every file failed.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string, progress func(msg string)) (*Report, error) {
	if progress == nil {
		progress = func(string) {}
	}

	report := &Report{}
	for _, path := range paths {
		progress(fmt.Sprintf("parsing %s", path))

		chunks, err := p.loader.LoadFile(path)
		if err != nil {
			report.Files = append(report.Files, FileResult{Name: path, Err: err})
			continue
		}
		progress(fmt.Sprintf("chunked %s into %d chunks", path, len(chunks)))

		if err := p.embedAndStore(ctx, chunks); err != nil {
			report.Files = append(report.Files, FileResult{Name: path, Err: err})
			continue
		}

		report.Files = append(report.Files, FileResult{Name: path, Chunks: len(chunks)})
		report.TotalChunks += len(chunks)
		progress(fmt.Sprintf("ingested %d chunks from %s", len(chunks), path))
	}

	if len(paths) > 0 && report.Succeeded() == 0 {
		return report, fmt.Errorf("ingestion: all %d files failed", len(paths))
	}

	return report, nil
}

// IngestReader parses, chunks, embeds, and stores a single in-memory document
// (e.g. an HTTP upload). It returns the number of chunks stored.
func (p *Pipeline) IngestReader(ctx context.Context, name string, r io.ReaderAt, size int64) (int, error) {
	chunks, err := p.loader.Load(name, r, size)
	if err != nil {
		return 0, err
	}
	if err := p.embedAndStore(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// embedAndStore embeds chunks in batches and adds them to the store.
func (p *Pipeline) embedAndStore(ctx context.Context, chunks []rag.Chunk) error {
	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("ingestion: embedding failed: %w", err)
		}

		if err := p.store.Add(ctx, batch, embeddings); err != nil {
			return fmt.Errorf("ingestion: storing chunks failed: %w", err)
		}
	}
	return nil
}
