package index

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// Backend selects an index implementation.
type Backend string

const (
	// BackendSQLite selects the local SQLite file index.
	BackendSQLite Backend = "sqlite"
	// BackendQdrant selects a Qdrant server.
	BackendQdrant Backend = "qdrant"
	// BackendMilvus selects a Milvus server.
	BackendMilvus Backend = "milvus"
)

// DefaultCollection is the collection name used by the ingestion job.
const DefaultCollection = "spotify_songs_collection"

// Config selects and configures an index backend.
type Config struct {
	// Backend identifies which implementation to open.
	Backend Backend
	// Collection is the logical namespace shared by every backend.
	Collection string
	// SQLitePath is the database file for BackendSQLite. Empty uses
	// DefaultSQLitePath.
	SQLitePath string
	// Qdrant holds connection settings for BackendQdrant.
	Qdrant QdrantConfig
	// MilvusAddress is the host:port of the Milvus proxy.
	MilvusAddress string
}

// ConfigFromEnv resolves a Config from environment variables.
//
//	INDEX_BACKEND      = sqlite | qdrant | milvus (default: sqlite)
//	INDEX_COLLECTION   (default: spotify_songs_collection)
//	INDEX_SQLITE_PATH  (default: ~/.toonify/index.db)
//	QDRANT_HOST, QDRANT_PORT (default: 6334), QDRANT_API_KEY, QDRANT_TLS
//	MILVUS_ADDRESS     (default: localhost:19530)
func ConfigFromEnv() *Config {
	collection := getEnvOrDefault("INDEX_COLLECTION", DefaultCollection)
	return &Config{
		Backend:    Backend(getEnvOrDefault("INDEX_BACKEND", string(BackendSQLite))),
		Collection: collection,
		SQLitePath: os.Getenv("INDEX_SQLITE_PATH"),
		Qdrant: QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: collection,
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		},
		MilvusAddress: getEnvOrDefault("MILVUS_ADDRESS", "localhost:19530"),
	}
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg *Config) (Store, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	switch cfg.Backend {
	case BackendSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			p, err := DefaultSQLitePath()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
			}
			path = p
		}
		return OpenSQLite(path, cfg.Collection)
	case BackendQdrant:
		qc := cfg.Qdrant
		qc.Collection = cfg.Collection
		return OpenQdrant(ctx, &qc)
	case BackendMilvus:
		return OpenMilvus(ctx, cfg.MilvusAddress, cfg.Collection)
	default:
		return nil, fmt.Errorf("index: unknown backend %q; valid values: sqlite, qdrant, milvus", cfg.Backend)
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
