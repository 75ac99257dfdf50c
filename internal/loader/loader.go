// Package loader extracts text from uploaded documents and splits it into
// overlapping chunks sized for embedding. PDF is the only supported input
// format; extraction is per page so every chunk keeps its page provenance.
package loader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/ragbot/ragbot-go/internal/rag"
)

// Default chunking parameters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Options configures how extracted text is split into chunks.
type Options struct {
	// ChunkSize is the maximum number of characters per chunk.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between consecutive chunks.
	ChunkOverlap int
}

// Loader extracts text from PDF files and splits it into chunks.
// It is safe for concurrent use.
type Loader struct {
	splitter textsplitter.RecursiveCharacter
}

// New constructs a Loader with the given chunking options. Zero values fall
// back to the defaults (1000-character chunks, 200-character overlap).
func New(opts Options) *Loader {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := opts.ChunkOverlap
	if overlap <= 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 5
	}

	return &Loader{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
	}
}

// LoadFile extracts and chunks the document at path. Non-PDF files are
// rejected with an error naming the unsupported extension.
func (l *Loader) LoadFile(path string) ([]rag.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return nil, fmt.Errorf("loader: unsupported file format %q (only .pdf is supported)", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: failed to open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("loader: failed to stat %s: %w", path, err)
	}

	return l.Load(filepath.Base(path), f, stat.Size())
}

// Load extracts and chunks a PDF from the given reader. name is recorded as
// the Source of every resulting chunk.
func (l *Loader) Load(name string, r io.ReaderAt, size int64) ([]rag.Chunk, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("loader: failed to parse %s as PDF: %w", name, err)
	}

	var chunks []rag.Chunk
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("loader: failed to extract page %d of %s: %w", i, name, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}

		pageChunks, err := l.Split(pageText, name, i)
		if err != nil {
			return nil, fmt.Errorf("loader: failed to chunk page %d of %s: %w", i, name, err)
		}
		chunks = append(chunks, pageChunks...)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("loader: no extractable text in %s (scanned or image-only PDF?)", name)
	}

	return chunks, nil
}

// Split chunks a span of already-extracted text, tagging every chunk with the
// given source name and page number.
func (l *Loader) Split(text, source string, page int) ([]rag.Chunk, error) {
	parts, err := l.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("loader: text splitting failed: %w", err)
	}

	chunks := make([]rag.Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, rag.Chunk{
			Text:   part,
			Source: source,
			Page:   page,
		})
	}

	return chunks, nil
}
