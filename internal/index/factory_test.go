package index

import (
	"context"
	"path/filepath"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("INDEX_BACKEND", "qdrant")
	t.Setenv("INDEX_COLLECTION", "songs_v2")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("QDRANT_TLS", "true")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendQdrant {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.Collection != "songs_v2" || cfg.Qdrant.Collection != "songs_v2" {
		t.Errorf("collection = %q / %q", cfg.Collection, cfg.Qdrant.Collection)
	}
	if cfg.Qdrant.Port != 7000 || !cfg.Qdrant.UseTLS {
		t.Errorf("qdrant = %+v", cfg.Qdrant)
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("INDEX_BACKEND", "")
	t.Setenv("INDEX_COLLECTION", "")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Backend)
	}
	if cfg.Collection != DefaultCollection {
		t.Errorf("Collection = %q, want %q", cfg.Collection, DefaultCollection)
	}
}

func TestOpen_SQLite(t *testing.T) {
	t.Parallel()

	st, err := Open(context.Background(), &Config{
		Backend:    BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "index.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if st.Name() != "sqlite" {
		t.Errorf("Name() = %q", st.Name())
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), &Config{Backend: "chroma"}); err == nil {
		t.Fatal("want error for unknown backend")
	}
}
