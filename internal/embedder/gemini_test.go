package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/text-embedding-004:batchEmbedContents") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key: got %q, want %q", got, "test-key")
		}

		var req geminiEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Requests) != 2 {
			t.Errorf("expected 2 embed requests, got %d", len(req.Requests))
		}
		if req.Requests[0].Model != "models/text-embedding-004" {
			t.Errorf("unexpected model ref: %q", req.Requests[0].Model)
		}

		resp := map[string]any{
			"embeddings": []map[string]any{
				{"values": []float32{0.1, 0.2}},
				{"values": []float32{0.3, 0.4}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	emb := NewGeminiEmbedder(&GeminiConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "text-embedding-004",
	})

	got, err := emb.Embed(context.Background(), []string{"first text", "second text"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(got))
	}
	if got[0][0] != 0.1 || got[1][1] != 0.4 {
		t.Errorf("unexpected embedding values: %v", got)
	}
}

func TestGeminiEmbedder_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "API key not valid"},
		})
	}))
	defer srv.Close()

	emb := NewGeminiEmbedder(&GeminiConfig{
		BaseURL: srv.URL,
		APIKey:  "bad-key",
		Model:   "text-embedding-004",
	})

	_, err := emb.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("expected error for HTTP 403")
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("expected API error message in error, got: %v", err)
	}
}

func TestGeminiEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": []map[string]any{{"values": []float32{0.1}}},
		})
	}))
	defer srv.Close()

	emb := NewGeminiEmbedder(&GeminiConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "text-embedding-004",
	})

	_, err := emb.Embed(context.Background(), []string{"one", "two"})
	if err == nil {
		t.Fatal("expected error when embedding count does not match input count")
	}
}
