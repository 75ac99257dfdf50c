package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ragbot/ragbot-go/internal/chain"
	"github.com/ragbot/ragbot-go/internal/memory"
)

func TestHandleStatus(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{
		state:      chain.StateReady,
		storeReady: true,
		chunks:     42,
		turns:      []memory.Turn{{Role: memory.RoleUser, Text: "q", At: time.Now()}},
	}
	s := newTestServerWith(sess)
	s.cfg.Sources = func() []string { return []string{"manual.pdf"} }

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()

	s.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != string(chain.StateReady) {
		t.Errorf("state: expected ready, got %q", resp.State)
	}
	if !resp.StoreReady || resp.Chunks != 42 || resp.WindowLen != 1 {
		t.Errorf("unexpected status: %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "manual.pdf" {
		t.Errorf("unexpected sources: %v", resp.Sources)
	}
}

func TestHandleHistory_EmptyWindow(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Turns == nil {
		t.Error("turns must be an empty array, not null")
	}
	if len(resp.Turns) != 0 {
		t.Errorf("expected 0 turns, got %d", len(resp.Turns))
	}
}

func TestHandleHistory_ReturnsTurns(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{
		turns: []memory.Turn{
			{Role: memory.RoleUser, Text: "q1"},
			{Role: memory.RoleAssistant, Text: "a1"},
		},
	}
	s := newTestServerWith(sess)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Turns) != 2 || resp.Turns[0].Text != "q1" || resp.Turns[1].Text != "a1" {
		t.Errorf("unexpected turns: %+v", resp.Turns)
	}
}

func TestHandleReset(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	s := newTestServerWith(sess)

	req := httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	w := httptest.NewRecorder()

	s.handleReset(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !sess.resetCalled {
		t.Error("expected ResetMemory to be called")
	}
}

func TestHandleReset_Error(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{resetErr: errors.New("db locked")}
	s := newTestServerWith(sess)

	req := httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	w := httptest.NewRecorder()

	s.handleReset(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
