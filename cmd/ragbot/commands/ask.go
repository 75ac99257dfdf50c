package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragbot/ragbot-go/internal/chain"
	"github.com/ragbot/ragbot-go/internal/embedder"
	"github.com/ragbot/ragbot-go/internal/logging"
	"github.com/ragbot/ragbot-go/internal/provider"
	"github.com/ragbot/ragbot-go/internal/rag"
)

// cliSessionID keys the persisted conversation thread shared by all
// `ragbot ask` invocations on this machine.
const cliSessionID = "cli"

// NewAskCmd constructs the `ragbot ask` command, which answers a single
// question from the indexed documents and prints the answer to stdout.
// Conversation memory persists between invocations, so follow-up questions
// work across separate runs.
func NewAskCmd() *cobra.Command {
	var storeDir string
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your indexed documents",
		Long: `Ask a natural language question answered from the indexed documents.

The question is embedded, the most relevant chunks are retrieved from the
local vector store, and a hosted LLM generates an answer grounded in those
chunks. Run 'ragbot ingest' first to index your PDFs.

Examples:
  ragbot ask "what does the warranty cover?"
  ragbot ask --sources "when is the annual report due?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ask: failed to initialise embedder: %w", err)
			}

			if storeDir == "" {
				storeDir, err = resolveStoreDir()
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
			}

			vs, err := rag.OpenLocalStore(storeDir)
			if err != nil {
				if errors.Is(err, rag.ErrStoreNotFound) {
					return fmt.Errorf("ask: no indexed documents at %s — run 'ragbot ingest <file.pdf>' first", storeDir)
				}
				return fmt.Errorf("ask: open vector store: %w", err)
			}
			defer vs.Close()

			historyStore, closeHistory := openHistory(log)
			defer closeHistory()

			session, err := chain.NewSession(&chain.Config{
				ChatModel:  chatModel,
				Embedder:   emb,
				Store:      vs,
				TopK:       envInt("RAG_TOP_K", 0),
				WindowSize: envInt("MEMORY_WINDOW", 0),
				History:    historyStore,
				SessionID:  cliSessionID,
			})
			if err != nil {
				return fmt.Errorf("ask: failed to create session: %w", err)
			}
			if err := session.RestoreHistory(ctx); err != nil {
				log.Warn("could not restore conversation history", slog.Any("error", err))
			}

			res, err := session.Answer(ctx, args[0])
			if err != nil {
				log.Error("turn failed", slog.String("kind", string(chain.KindOf(err))), slog.Any("error", err))
				fmt.Fprintln(os.Stderr, chain.FallbackMessage(err))
				return err
			}

			fmt.Println(res.Answer)
			if showSources && len(res.Sources) > 0 {
				fmt.Println("\nSources:")
				for i, c := range res.Sources {
					fmt.Printf("  %d. %s (page %d, score %.2f)\n", i+1, c.Source, c.Page, c.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDir, "store-dir", "", "Vector store directory (default: $RAGBOT_STORE_DIR or ~/.ragbot/store)")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the source chunks the answer was grounded in")

	return cmd
}
