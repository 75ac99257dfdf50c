package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/ragbot/ragbot-go/internal/chain"
	"github.com/ragbot/ragbot-go/internal/embedder"
	"github.com/ragbot/ragbot-go/internal/ingestion"
	"github.com/ragbot/ragbot-go/internal/loader"
	"github.com/ragbot/ragbot-go/internal/logging"
	"github.com/ragbot/ragbot-go/internal/provider"
	"github.com/ragbot/ragbot-go/internal/server"
	"github.com/ragbot/ragbot-go/internal/tracing"
)

// serveSessionID keys the persisted conversation thread used by the HTTP
// server. The server hosts a single conversation.
const serveSessionID = "server"

// NewServeCmd constructs the `ragbot serve` command, which starts the HTTP
// server exposing document upload and chat endpoints.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragbot HTTP server",
		Long: `Start the ragbot HTTP server on localhost.

The server exposes a REST API: upload PDFs to POST /api/documents, ask
questions via POST /api/chat, and inspect or reset the conversation with
GET /api/history and POST /api/reset. A previously saved vector store is
loaded at startup, so indexed documents survive restarts.

Examples:
  ragbot serve
  ragbot serve --port 9090
  MODEL_PROVIDER=openai ragbot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised")

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}
			backend := embedder.ResolveBackend()
			log.Info("embedder initialised", slog.String("provider", backend))

			storeDir, err := resolveStoreDir()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			vs, loaded, err := openOrCreateStore(storeDir, embedder.DefaultDimensions(backend), log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer vs.Close()

			historyStore, closeHistory := openHistory(log)
			defer closeHistory()

			sessionCfg := &chain.Config{
				ChatModel:  chatModel,
				Embedder:   emb,
				TopK:       envInt("RAG_TOP_K", 0),
				WindowSize: envInt("MEMORY_WINDOW", 0),
				History:    historyStore,
				SessionID:  serveSessionID,
			}
			// Only attach the store when it holds previously indexed
			// documents; an empty store means questions should be refused
			// until the first upload.
			if loaded {
				sessionCfg.Store = vs
			}
			session, err := chain.NewSession(sessionCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to create session: %w", err)
			}
			if err := session.RestoreHistory(ctx); err != nil {
				log.Warn("could not restore conversation history", slog.Any("error", err))
			}

			ld := loader.New(loader.Options{
				ChunkSize:    envInt("CHUNK_SIZE", 0),
				ChunkOverlap: envInt("CHUNK_OVERLAP", 0),
			})
			pipeline, err := ingestion.NewPipeline(ld, emb, vs, nil)
			if err != nil {
				return fmt.Errorf("serve: failed to create pipeline: %w", err)
			}

			srv, err := server.New(session, pipeline, &server.Config{
				Host:         host,
				Port:         port,
				Logger:       log,
				APIKey:       os.Getenv("RAGBOT_API_KEY"),
				VectorStore:  vs,
				PersistStore: func() error { return vs.Save(storeDir) },
				Sources:      vs.Sources,
				Pingers: []server.Pinger{
					server.NewLLMPinger(chatModel, envOrDefault("MODEL_PROVIDER", "gemini")),
					server.NewEmbedderPinger(emb),
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
