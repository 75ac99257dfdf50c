package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ragbot/ragbot-go/internal/embedder"
	"github.com/ragbot/ragbot-go/internal/ingestion"
	"github.com/ragbot/ragbot-go/internal/loader"
	"github.com/ragbot/ragbot-go/internal/logging"
)

// NewIngestCmd constructs the `ragbot ingest` command, which indexes PDF
// files into the local vector store.
func NewIngestCmd() *cobra.Command {
	var storeDir string
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Index PDF files into the local vector store",
		Long: `Extract text from PDF files, split it into overlapping chunks, embed each
chunk, and save the resulting index to the local vector store.

Files are processed independently: a PDF that fails to parse is reported and
skipped, and the remaining files are still indexed. The command fails only
when every file fails.

Required environment variables depend on the embedding backend:
  EMBEDDING_PROVIDER   Embedding backend: gemini, ollama, openai, azure
                       (defaults to MODEL_PROVIDER, then gemini)
  GOOGLE_API_KEY       Required for the gemini backend
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  ragbot ingest report.pdf
  ragbot ingest docs/*.pdf --chunk-size 800 --chunk-overlap 150
  ragbot ingest manual.pdf --store-dir ./index`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			backend := embedder.ResolveBackend()
			log.Info("embedder initialised", slog.String("provider", backend))

			if storeDir == "" {
				storeDir, err = resolveStoreDir()
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}

			vs, loaded, err := openOrCreateStore(storeDir, embedder.DefaultDimensions(backend), log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer vs.Close()
			if loaded {
				log.Info("appending to existing store", slog.Int("chunks", vs.Count()))
			}

			ld := loader.New(loader.Options{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			})

			pipeline, err := ingestion.NewPipeline(ld, emb, vs, nil)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			report, err := pipeline.IngestFiles(ctx, args, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			if err := vs.Save(storeDir); err != nil {
				return fmt.Errorf("ingest: failed to save store: %w", err)
			}

			for _, f := range report.Failed() {
				log.Warn("file skipped", slog.String("file", f.Name), slog.Any("error", f.Err))
			}
			log.Info("ingestion complete",
				slog.Int("files", report.Succeeded()),
				slog.Int("skipped", len(report.Failed())),
				slog.Int("chunks_added", report.TotalChunks),
				slog.Int("chunks_total", vs.Count()),
				slog.String("store", storeDir),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDir, "store-dir", "", "Vector store directory (default: $RAGBOT_STORE_DIR or ~/.ragbot/store)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", envInt("CHUNK_SIZE", loader.DefaultChunkSize), "Maximum chunk size in characters")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", envInt("CHUNK_OVERLAP", loader.DefaultChunkOverlap), "Overlap between consecutive chunks in characters")

	return cmd
}
