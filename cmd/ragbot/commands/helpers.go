package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ragbot/ragbot-go/internal/rag"
	"github.com/ragbot/ragbot-go/internal/store"
)

// envOrDefault returns the value of the environment variable key, or fallback
// if it is unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of the environment variable key, or
// fallback if it is unset or not a valid integer.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// resolveStoreDir returns the vector store directory: RAGBOT_STORE_DIR if
// set, otherwise ~/.ragbot/store.
func resolveStoreDir() (string, error) {
	if dir := os.Getenv("RAGBOT_STORE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ragbot", "store"), nil
}

// openHistory opens the SQLite conversation history store. RAGBOT_HISTORY_DB
// overrides the default path (~/.ragbot/history.db); set it to "disabled" to
// run without persistence. Failures degrade to in-memory-only history rather
// than aborting the command. The returned close function is always safe to call.
func openHistory(log *slog.Logger) (store.ConversationStore, func()) {
	noop := func() {}

	dbPath := os.Getenv("RAGBOT_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via RAGBOT_HISTORY_DB=disabled")
		return nil, noop
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, noop
		}
	}

	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, noop
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// openOrCreateStore opens the persisted vector store at dir, or creates an
// empty in-memory store with the given dimension when none exists yet.
// The second return value reports whether a persisted store was loaded.
// A corrupt on-disk store is returned as an error so the operator can decide
// whether to delete and re-index.
func openOrCreateStore(dir string, dimension int, log *slog.Logger) (*rag.LocalStore, bool, error) {
	vs, err := rag.OpenLocalStore(dir)
	if err == nil {
		log.Info("vector store loaded",
			slog.String("dir", dir),
			slog.Int("chunks", vs.Count()),
			slog.Int("dimension", vs.Dimension()),
		)
		return vs, true, nil
	}
	if !errors.Is(err, rag.ErrStoreNotFound) {
		return nil, false, fmt.Errorf("open vector store at %s: %w", dir, err)
	}

	vs, err = rag.NewLocalStore(dimension)
	if err != nil {
		return nil, false, fmt.Errorf("create vector store: %w", err)
	}
	log.Info("no persisted vector store found, starting empty", slog.String("dir", dir))
	return vs, false, nil
}
