package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragbot/ragbot-go/internal/chain"
	"github.com/ragbot/ragbot-go/internal/memory"
	"github.com/ragbot/ragbot-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Fake session for handler tests
// ---------------------------------------------------------------------------

// fakeSession implements the answerer interface for tests.
type fakeSession struct {
	// answer and err are returned by Answer.
	answer *chain.AnswerResult
	err    error
	// turns is returned by Window.
	turns []memory.Turn
	// state and storeReady back the status queries.
	state      chain.State
	storeReady bool
	chunks     int
	// resetErr is returned by ResetMemory.
	resetErr error
	// resetCalled and attached record handler side effects.
	resetCalled bool
	attached    rag.VectorStore
}

func (f *fakeSession) Answer(_ context.Context, _ string) (*chain.AnswerResult, error) {
	return f.answer, f.err
}
func (f *fakeSession) Window() []memory.Turn { return f.turns }
func (f *fakeSession) ResetMemory(_ context.Context) error {
	f.resetCalled = true
	return f.resetErr
}
func (f *fakeSession) AttachStore(vs rag.VectorStore) {
	f.attached = vs
	f.storeReady = vs != nil
}
func (f *fakeSession) State() chain.State { return f.state }
func (f *fakeSession) StoreReady() bool   { return f.storeReady }
func (f *fakeSession) ChunkCount() int    { return f.chunks }

// newTestServer builds a *Server with a fresh metrics registry and a default
// fake session, suitable for calling handlers directly.
func newTestServer() *Server {
	return newTestServerWith(&fakeSession{state: chain.StateReady, storeReady: true})
}

// newTestServerWith builds a *Server around the provided fake session.
func newTestServerWith(sess *fakeSession) *Server {
	return &Server{
		session: sess,
		cfg:     &Config{MaxUploadBytes: 32 << 20},
		log:     slog.Default(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — validation error paths
// ---------------------------------------------------------------------------

func TestHandleChat_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_MissingMessage(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — happy path and failure mapping
// ---------------------------------------------------------------------------

func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{
		answer: &chain.AnswerResult{
			Answer:  "The warranty lasts two years.",
			Sources: []rag.Chunk{{Text: "Warranty: 2 years.", Source: "manual.pdf", Page: 4}},
		},
		state:      chain.StateReady,
		storeReady: true,
	}
	s := newTestServerWith(sess)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"how long is the warranty?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "The warranty lasts two years." {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Source != "manual.pdf" {
		t.Errorf("unexpected sources: %+v", resp.Sources)
	}
}

func TestHandleChat_NoStoreReturns409(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{
		err:   &chain.TurnError{Kind: chain.KindNoVectorStore, Err: errors.New("no vector store attached")},
		state: chain.StateUninitialized,
	}
	s := newTestServerWith(sess)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != string(chain.KindNoVectorStore) {
		t.Errorf("error kind: expected %s, got %s", chain.KindNoVectorStore, resp.Error)
	}
	if resp.Message != chain.NoStoreMessage {
		t.Errorf("message: expected upload prompt, got %q", resp.Message)
	}
}

func TestHandleChat_ModelFailureReturns502(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{
		err: &chain.TurnError{Kind: chain.KindModelInvocation, Err: errors.New("upstream 500")},
	}
	s := newTestServerWith(sess)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "upstream 500") {
		t.Error("raw error text must not leak to the client")
	}
}

func TestStatusForKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind chain.ErrorKind
		want int
	}{
		{chain.KindNoVectorStore, http.StatusConflict},
		{chain.KindModelInvocation, http.StatusBadGateway},
		{chain.KindDocumentProcessing, http.StatusUnprocessableEntity},
		{chain.KindInvalidInput, http.StatusBadRequest},
		{chain.KindCorruptStore, http.StatusInternalServerError},
		{chain.KindConfig, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForKind(tc.kind); got != tc.want {
			t.Errorf("kind %q: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
}
