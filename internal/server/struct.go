package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragbot/ragbot-go/internal/chain"
	"github.com/ragbot/ragbot-go/internal/memory"
	"github.com/ragbot/ragbot-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. Must be
	// long enough for a full chat turn including the model retry.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MaxUploadBytes caps the total size of a document upload request.
	// Defaults to 32 MiB if zero.
	MaxUploadBytes int64
	// VectorStore is the store the ingestor writes into. It is attached to
	// the session after the first successful upload.
	VectorStore rag.VectorStore
	// PersistStore saves the vector store to disk after a successful upload.
	// If nil, uploads are served from memory only.
	PersistStore func() error
	// Sources returns the distinct document names in the store, for
	// GET /api/status. May be nil.
	Sources func() []string
	// MetricsRegistry receives the server's Prometheus metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface handleChat and the status handlers call.
// *chain.Session satisfies it; tests may inject a fake.
type answerer interface {
	Answer(ctx context.Context, question string) (*chain.AnswerResult, error)
	Window() []memory.Turn
	ResetMemory(ctx context.Context) error
	AttachStore(vs rag.VectorStore)
	State() chain.State
	StoreReady() bool
	ChunkCount() int
}

// documentIngestor is the interface handleDocuments calls to process an
// uploaded PDF. *ingestion.Pipeline satisfies it.
type documentIngestor interface {
	IngestReader(ctx context.Context, name string, r io.ReaderAt, size int64) (int, error)
}

// Server is the HTTP server that exposes the chat chain.
type Server struct {
	// session is the conversational chain that handles all questions.
	session answerer
	// ingestor processes uploaded documents into the vector store.
	ingestor documentIngestor
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's question.
	Message string `json:"message"`
}

// chatResponse is the JSON response for a successful POST /api/chat.
type chatResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources are the document chunks the answer was grounded in.
	Sources []rag.Chunk `json:"sources,omitempty"`
}

// errorResponse is the JSON body for failed API requests.
type errorResponse struct {
	// Error is the machine-readable failure kind (e.g. "no_vector_store").
	Error string `json:"error"`
	// Message is the user-facing explanation.
	Message string `json:"message"`
}

// uploadFileResult is the per-file outcome inside an uploadResponse.
type uploadFileResult struct {
	// Name is the uploaded file name.
	Name string `json:"name"`
	// Chunks is the number of chunks indexed from this file.
	Chunks int `json:"chunks"`
	// Error is the failure reason if this file could not be processed.
	Error string `json:"error,omitempty"`
}

// uploadResponse is the JSON response for POST /api/documents.
type uploadResponse struct {
	// Files holds the per-file outcomes in upload order.
	Files []uploadFileResult `json:"files"`
	// TotalChunks is the number of chunks indexed by this request.
	TotalChunks int `json:"totalChunks"`
	// StoreChunks is the total number of chunks now in the store.
	StoreChunks int `json:"storeChunks"`
}

// statusResponse is the JSON response for GET /api/status.
type statusResponse struct {
	// State is the chain lifecycle state: uninitialized, ready, or error.
	State string `json:"state"`
	// StoreReady is true when a vector store is attached.
	StoreReady bool `json:"storeReady"`
	// Chunks is the number of chunks in the attached store.
	Chunks int `json:"chunks"`
	// WindowLen is the number of messages currently held in memory.
	WindowLen int `json:"windowLen"`
	// Sources lists the distinct document names in the store.
	Sources []string `json:"sources,omitempty"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	// Turns is the conversation window, oldest first.
	Turns []memory.Turn `json:"turns"`
}
