package embedder

import (
	"os"
	"testing"
)

func clearEmbedderEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY",
		"EMBEDDING_ENDPOINT", "EMBEDDING_DIMENSIONS",
		"MODEL_PROVIDER", "GOOGLE_API_KEY", "OPENAI_API_KEY",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "OLLAMA_HOST",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestResolveBackend_Cascade(t *testing.T) {
	clearEmbedderEnv(t)

	if got := ResolveBackend(); got != "gemini" {
		t.Errorf("default backend: got %q, want gemini", got)
	}

	t.Setenv("MODEL_PROVIDER", "ollama")
	if got := ResolveBackend(); got != "ollama" {
		t.Errorf("inherited backend: got %q, want ollama", got)
	}

	t.Setenv("EMBEDDING_PROVIDER", "openai")
	if got := ResolveBackend(); got != "openai" {
		t.Errorf("explicit backend: got %q, want openai", got)
	}
}

func TestNewFromEnv_GeminiRequiresKey(t *testing.T) {
	clearEmbedderEnv(t)

	if _, err := NewFromEnv(); err == nil {
		t.Fatal("expected error when GOOGLE_API_KEY is unset")
	}

	t.Setenv("GOOGLE_API_KEY", "test-key")
	emb, err := NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv failed: %v", err)
	}
	if _, ok := emb.(*GeminiEmbedder); !ok {
		t.Errorf("expected *GeminiEmbedder, got %T", emb)
	}
}

func TestNewFromEnv_Ollama(t *testing.T) {
	clearEmbedderEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "ollama")

	emb, err := NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv failed: %v", err)
	}
	if _, ok := emb.(*OllamaEmbedder); !ok {
		t.Errorf("expected *OllamaEmbedder, got %T", emb)
	}
}

func TestNewFromEnv_UnknownBackend(t *testing.T) {
	clearEmbedderEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "watsonx")

	if _, err := NewFromEnv(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestDefaultDimensions(t *testing.T) {
	clearEmbedderEnv(t)

	tests := []struct {
		backend string
		want    int
	}{
		{"ollama", 768},
		{"gemini", 768},
		{"openai", 1536},
		{"azure", 1536},
	}
	for _, tt := range tests {
		if got := DefaultDimensions(tt.backend); got != tt.want {
			t.Errorf("DefaultDimensions(%q) = %d, want %d", tt.backend, got, tt.want)
		}
	}

	t.Setenv("EMBEDDING_DIMENSIONS", "512")
	if got := DefaultDimensions("ollama"); got != 512 {
		t.Errorf("EMBEDDING_DIMENSIONS override: got %d, want 512", got)
	}
}
