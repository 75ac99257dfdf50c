package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/vecgo"
)

const (
	// indexFileName is the vecgo snapshot holding the raw vectors.
	indexFileName = "index.vecgo"

	// chunksFileName is the JSON manifest holding chunk texts and metadata,
	// parallel to the vectors in the index file.
	chunksFileName = "chunks.json"
)

// ErrStoreNotFound is returned by OpenLocalStore when no persisted store
// exists at the given directory. Callers treat this as "no documents yet",
// not as a failure.
var ErrStoreNotFound = errors.New("localstore: no persisted store found")

// CorruptStoreError reports a persisted store whose index and manifest files
// disagree or cannot be read. The store must be rebuilt by re-ingesting.
type CorruptStoreError struct {
	// Dir is the store directory that failed to load.
	Dir string

	// Reason describes the inconsistency that was detected.
	Reason string
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("localstore: corrupt store at %s: %s", e.Dir, e.Reason)
}

// LocalStore implements VectorStore backed by an embedded vecgo flat index.
// Vectors are stored unit length, so the index's squared L2 distance between
// two vectors equals 2 minus twice their cosine similarity and ranking by
// distance is ranking by cosine. Chunks are held in memory parallel to their
// vectors and the whole store persists as two files in a directory: the
// vecgo snapshot and a JSON chunk manifest.
type LocalStore struct {
	mu sync.RWMutex

	// db is the underlying vecgo index. The data payload of each vector is
	// its position in the chunks slice.
	db *vecgo.Vecgo[int]

	// chunks holds the chunk texts, parallel to the vectors in db.
	chunks []Chunk

	// dimension is the embedding vector size this store was built for.
	dimension int
}

// storeManifest is the on-disk JSON structure of the chunk manifest.
// Count duplicates len(Chunks) so truncated files are detectable.
type storeManifest struct {
	Dimension int     `json:"dimension"`
	Count     int     `json:"count"`
	Chunks    []Chunk `json:"chunks"`
}

// NewLocalStore creates an empty LocalStore for embeddings of the given
// dimensionality.
func NewLocalStore(dimension int) (*LocalStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("localstore: dimension must be positive, got %d", dimension)
	}

	return &LocalStore{
		db:        vecgo.NewFlat[int](dimension),
		dimension: dimension,
	}, nil
}

// OpenLocalStore loads a persisted store from dir. It returns
// ErrStoreNotFound when neither file exists, and *CorruptStoreError when the
// files are present but inconsistent (partial writes, count mismatch, or a
// manifest that does not match the index contents).
func OpenLocalStore(dir string) (*LocalStore, error) {
	indexPath := filepath.Join(dir, indexFileName)
	chunksPath := filepath.Join(dir, chunksFileName)

	_, indexErr := os.Stat(indexPath)
	_, chunksErr := os.Stat(chunksPath)
	if os.IsNotExist(indexErr) && os.IsNotExist(chunksErr) {
		return nil, ErrStoreNotFound
	}
	if os.IsNotExist(indexErr) || os.IsNotExist(chunksErr) {
		return nil, &CorruptStoreError{Dir: dir, Reason: "one of the two store files is missing"}
	}

	data, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("localstore: failed to read manifest: %w", err)
	}

	var manifest storeManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, &CorruptStoreError{Dir: dir, Reason: fmt.Sprintf("manifest is not valid JSON: %v", err)}
	}
	if manifest.Count != len(manifest.Chunks) {
		return nil, &CorruptStoreError{
			Dir:    dir,
			Reason: fmt.Sprintf("manifest count %d does not match %d stored chunks", manifest.Count, len(manifest.Chunks)),
		}
	}
	if manifest.Dimension <= 0 {
		return nil, &CorruptStoreError{Dir: dir, Reason: "manifest has no embedding dimension"}
	}

	db, err := vecgo.NewFromFilename[int](indexPath)
	if err != nil {
		return nil, &CorruptStoreError{Dir: dir, Reason: fmt.Sprintf("index file failed to load: %v", err)}
	}

	s := &LocalStore{
		db:        db,
		chunks:    manifest.Chunks,
		dimension: manifest.Dimension,
	}

	// Probe the index with a basis vector to confirm it actually holds the
	// vectors the manifest claims. A truncated or stale index file fails here.
	if len(s.chunks) > 0 {
		probe := make([]float32, manifest.Dimension)
		probe[0] = 1
		results, err := db.KNNSearch(probe, 1)
		if err != nil {
			return nil, &CorruptStoreError{Dir: dir, Reason: fmt.Sprintf("index probe failed: %v", err)}
		}
		if len(results) == 0 {
			return nil, &CorruptStoreError{Dir: dir, Reason: "index holds no vectors but manifest lists chunks"}
		}
		if results[0].Data < 0 || results[0].Data >= len(s.chunks) {
			return nil, &CorruptStoreError{
				Dir:    dir,
				Reason: fmt.Sprintf("index payload %d is outside the %d manifest chunks", results[0].Data, len(s.chunks)),
			}
		}
	}

	return s, nil
}

// Add stores a batch of chunks with their pre-computed embeddings.
func (s *LocalStore) Add(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("localstore: got %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := len(s.chunks)
	for i, emb := range embeddings {
		if len(emb) != s.dimension {
			return fmt.Errorf("localstore: embedding %d has dimension %d, store expects %d", i, len(emb), s.dimension)
		}
	}
	for i, emb := range embeddings {
		_, err := s.db.Insert(&vecgo.VectorWithData[int]{
			Vector: normalize(emb),
			Data:   base + i,
		})
		if err != nil {
			return fmt.Errorf("localstore: failed to insert chunk %d: %w", base+i, err)
		}
	}

	s.chunks = append(s.chunks, chunks...)

	return nil
}

// Search returns the top-k chunks by cosine similarity to the query, with
// their scores populated. Score is the cosine similarity, so higher is more
// similar.
func (s *LocalStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Chunk, error) {
	if len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("localstore: query has dimension %d, store expects %d", len(queryEmbedding), s.dimension)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("localstore: topK must be positive, got %d", topK)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 {
		return nil, nil
	}
	if topK > len(s.chunks) {
		topK = len(s.chunks)
	}

	results, err := s.db.KNNSearch(normalize(queryEmbedding), topK)
	if err != nil {
		return nil, fmt.Errorf("localstore: search failed: %w", err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		if r.Data < 0 || r.Data >= len(s.chunks) {
			continue
		}
		c := s.chunks[r.Data]
		// On unit vectors, squared L2 distance d relates to cosine
		// similarity as d = 2 - 2*cos.
		c.Score = 1 - r.Distance/2
		chunks = append(chunks, c)
	}

	return chunks, nil
}

// Save persists the store to dir as two files, each written to a temporary
// file and renamed into place so a crash never leaves a half-written store.
func (s *LocalStore) Save(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("localstore: failed to create store directory: %w", err)
	}

	indexPath := filepath.Join(dir, indexFileName)
	indexTmp := indexPath + ".tmp"
	if err := s.db.SaveToFile(indexTmp); err != nil {
		return fmt.Errorf("localstore: failed to save index: %w", err)
	}
	if err := os.Rename(indexTmp, indexPath); err != nil {
		return fmt.Errorf("localstore: failed to finalise index file: %w", err)
	}

	manifest := storeManifest{
		Dimension: s.dimension,
		Count:     len(s.chunks),
		Chunks:    s.chunks,
	}
	if manifest.Chunks == nil {
		manifest.Chunks = []Chunk{}
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("localstore: failed to encode manifest: %w", err)
	}

	chunksPath := filepath.Join(dir, chunksFileName)
	chunksTmp := chunksPath + ".tmp"
	if err := os.WriteFile(chunksTmp, data, 0o644); err != nil {
		return fmt.Errorf("localstore: failed to write manifest: %w", err)
	}
	if err := os.Rename(chunksTmp, chunksPath); err != nil {
		return fmt.Errorf("localstore: failed to finalise manifest file: %w", err)
	}

	return nil
}

// Count reports the number of chunks currently in the store.
func (s *LocalStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Sources returns the distinct document names in the store, in first-seen order.
func (s *LocalStore) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var sources []string
	for _, c := range s.chunks {
		if !seen[c.Source] {
			seen[c.Source] = true
			sources = append(sources, c.Source)
		}
	}
	return sources
}

// Dimension reports the embedding vector size this store was built for.
func (s *LocalStore) Dimension() int {
	return s.dimension
}

// Close implements VectorStore. The flat index lives entirely in memory and
// holds no file handles, so there is nothing to release.
func (s *LocalStore) Close() error {
	return nil
}

// normalize returns v scaled to unit length. Zero vectors are returned as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
