// Package chain implements the conversational retrieval chain: it retrieves
// relevant chunks from the vector store, assembles a grounded prompt together
// with the bounded conversation window, invokes the chat model, and records
// the exchange. All failures cross the package boundary as *TurnError values
// so callers can map them to user-facing responses.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ragbot/ragbot-go/internal/budget"
	"github.com/ragbot/ragbot-go/internal/logging"
	"github.com/ragbot/ragbot-go/internal/memory"
	"github.com/ragbot/ragbot-go/internal/rag"
	"github.com/ragbot/ragbot-go/internal/store"
)

const (
	// defaultTopK is the number of chunks retrieved per question.
	defaultTopK = 4
	// defaultTimeout bounds a single model call. One retry is attempted on
	// transient failures, so a turn can take up to twice this.
	defaultTimeout = 30 * time.Second
)

// State describes the lifecycle of a Session.
type State string

const (
	// StateUninitialized means no vector store is attached yet.
	StateUninitialized State = "uninitialized"
	// StateReady means the session can answer questions.
	StateReady State = "ready"
	// StateError means the last turn failed. The state is not sticky: the
	// next successful turn returns the session to StateReady.
	StateError State = "error"
)

// Generator is the narrow surface of the chat model the chain needs.
// It is satisfied by the eino chat models returned by the provider factory.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Config holds the dependencies required to construct a Session.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel Generator

	// Embedder embeds questions for retrieval.
	Embedder rag.Embedder

	// Store is the vector store to answer from. May be nil; questions asked
	// before a store is attached fail with KindNoVectorStore.
	Store rag.VectorStore

	// TopK is the number of chunks retrieved per question. Defaults to 4.
	TopK int

	// WindowSize is the maximum number of conversation messages retained.
	// Defaults to memory.DefaultWindowSize.
	WindowSize int

	// MaxContextTokens is the estimated token budget for the full prompt.
	// History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens.
	MaxContextTokens int

	// Timeout bounds a single model call. Defaults to 30 seconds.
	Timeout time.Duration

	// History is the optional conversation store used to persist turns
	// across restarts. If nil, history lives only in the window.
	History store.ConversationStore

	// SessionID keys persisted history. Required when History is set.
	SessionID string
}

// AnswerResult is a successful chat turn: the generated answer and the
// chunks it was grounded in, ordered by descending similarity.
type AnswerResult struct {
	// Answer is the model's response text.
	Answer string `json:"answer"`
	// Sources are the retrieved chunks the answer was grounded in.
	Sources []rag.Chunk `json:"sources,omitempty"`
}

// Session is a conversational retrieval chain with bounded memory.
// It is safe for concurrent use; turns within one session are serialized.
type Session struct {
	// turnMu serializes whole turns so at most one Answer is in flight
	// per session.
	turnMu    sync.Mutex
	mu        sync.Mutex
	chatModel Generator
	embedder  rag.Embedder
	store     rag.VectorStore
	retriever rag.Retriever
	window    *memory.Window
	topK      int
	maxTokens int
	timeout   time.Duration
	state     State
	history   store.ConversationStore
	sessionID string
}

// NewSession constructs a Session from the provided Config. The session
// starts in StateUninitialized unless a store is supplied.
func NewSession(cfg *Config) (*Session, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chain: ChatModel must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("chain: Embedder must not be nil")
	}
	if cfg.History != nil && cfg.SessionID == "" {
		return nil, fmt.Errorf("chain: SessionID is required when History is set")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	maxTokens := cfg.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	s := &Session{
		chatModel: cfg.ChatModel,
		embedder:  cfg.Embedder,
		window:    memory.NewWindow(cfg.WindowSize),
		topK:      topK,
		maxTokens: maxTokens,
		timeout:   timeout,
		state:     StateUninitialized,
		history:   cfg.History,
		sessionID: cfg.SessionID,
	}
	s.setStoreLocked(cfg.Store)
	return s, nil
}

// AttachStore replaces the session's vector store. The conversation window
// is preserved: swapping document sets mid-conversation keeps the dialogue.
func (s *Session) AttachStore(vs rag.VectorStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStoreLocked(vs)
}

// setStoreLocked swaps the store and rebuilds the retriever over it.
// Callers must hold s.mu unless the session is not yet shared.
func (s *Session) setStoreLocked(vs rag.VectorStore) {
	s.store = vs
	if vs == nil {
		s.retriever = nil
		s.state = StateUninitialized
		return
	}
	s.retriever = &rag.DefaultRetriever{Embedder: s.embedder, Store: vs, TopK: s.topK}
	s.state = StateReady
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StoreReady reports whether a vector store is attached.
func (s *Session) StoreReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store != nil
}

// ChunkCount returns the number of chunks in the attached store, or zero
// when no store is attached.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return 0
	}
	return s.store.Count()
}

// Window returns a copy of the current conversation window, oldest first.
func (s *Session) Window() []memory.Turn {
	return s.window.Turns()
}

// ResetMemory clears the conversation window and, when history persistence
// is configured, the persisted thread. Resetting an already-empty session
// is a no-op. The vector store is untouched.
func (s *Session) ResetMemory(ctx context.Context) error {
	s.window.Reset()
	if s.history != nil {
		if err := s.history.Clear(ctx, s.sessionID); err != nil {
			return fmt.Errorf("chain: clear history: %w", err)
		}
	}
	return nil
}

// RestoreHistory replays the persisted tail of this session's conversation
// into the window so a restarted server keeps its context. A missing or
// empty thread is not an error.
func (s *Session) RestoreHistory(ctx context.Context) error {
	if s.history == nil {
		return nil
	}
	msgs, err := s.history.Recent(ctx, s.sessionID, s.window.Max())
	if err != nil {
		return fmt.Errorf("chain: restore history: %w", err)
	}
	for _, m := range msgs {
		switch m.Role {
		case store.RoleUser:
			s.window.Append(memory.RoleUser, m.Content)
		case store.RoleAssistant:
			s.window.Append(memory.RoleAssistant, m.Content)
		}
	}
	return nil
}

// Answer runs one chat turn: retrieve, assemble the prompt, invoke the
// model, and record the exchange. The window is updated only on success, so
// a failed turn leaves the conversation exactly as it was.
func (s *Session) Answer(ctx context.Context, question string) (*AnswerResult, error) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &TurnError{Kind: KindInvalidInput, Err: errors.New("question must not be empty")}
	}

	s.mu.Lock()
	retriever := s.retriever
	s.mu.Unlock()

	// Guard before any model call: without a store there is nothing to
	// ground an answer in.
	if retriever == nil {
		return nil, &TurnError{Kind: KindNoVectorStore, Err: errors.New("no vector store attached")}
	}

	chunks, err := retriever.Retrieve(ctx, question, s.topK)
	if err != nil {
		s.setState(StateError)
		var cse *rag.CorruptStoreError
		if errors.As(err, &cse) {
			return nil, &TurnError{Kind: KindCorruptStore, Err: err}
		}
		return nil, &TurnError{Kind: KindModelInvocation, Err: err}
	}

	messages := buildMessages(question, chunks, s.window.Turns(), s.maxTokens)

	reply, err := s.invoke(ctx, messages)
	if err != nil {
		s.setState(StateError)
		return nil, &TurnError{Kind: KindModelInvocation, Err: err}
	}

	s.window.AppendExchange(question, reply.Content)
	s.setState(StateReady)
	s.persistTurn(ctx, question, reply.Content)

	return &AnswerResult{Answer: reply.Content, Sources: chunks}, nil
}

// invoke calls the chat model with a per-attempt timeout, retrying once on
// transient failures (timeouts, connection errors). Cancellation of the
// caller's context stops the retry.
func (s *Session) invoke(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		reply, err := s.chatModel.Generate(callCtx, messages)
		cancel()
		if err == nil {
			if reply == nil || strings.TrimSpace(reply.Content) == "" {
				return nil, errors.New("model returned an empty response")
			}
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isTransient(err) {
			break
		}
		logging.FromContext(ctx).Warn("model call failed, retrying once", slog.Any("error", err))
	}
	return nil, lastErr
}

// isTransient reports whether a model call failure is worth one retry.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// persistTurn writes the exchange to the conversation store. Persistence
// failures are non-fatal: the answer was already produced.
func (s *Session) persistTurn(ctx context.Context, question, answer string) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(ctx, s.sessionID, store.RoleUser, question); err != nil {
		logging.FromContext(ctx).Warn("history: failed to persist user message", slog.Any("error", err))
	}
	if err := s.history.Append(ctx, s.sessionID, store.RoleAssistant, answer); err != nil {
		logging.FromContext(ctx).Warn("history: failed to persist assistant message", slog.Any("error", err))
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
