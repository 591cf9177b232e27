// Package audit records which configuration a toonify command started with.
// Secret values are reduced to "set" or "unset" before they reach a log line.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Sources names the files configuration was loaded from. Empty fields mean
// no file was found.
type Sources struct {
	// ConfigFile is the YAML file applied by config.Load.
	ConfigFile string
	// DotEnvFile is the .env file applied by config.LoadDotEnv.
	DotEnvFile string
}

// envKey is one environment variable reported at command start.
type envKey struct {
	name   string
	secret bool
}

// reportedKeys is the ordered list of env vars in every audit entry.
var reportedKeys = []envKey{
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"ARK_API_KEY", true},
	{"ARK_MODEL", false},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"EMBEDDING_CACHE_REDIS", false},
	{"INDEX_BACKEND", false},
	{"INDEX_COLLECTION", false},
	{"INDEX_SQLITE_PATH", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_API_KEY", true},
	{"MILVUS_ADDRESS", false},
	{"PIPELINE_TIMEOUT", false},
	{"PIPELINE_STAGE_TIMEOUT", false},
	{"PIPELINE_TOP_K", false},
	{"SPOTIFY_API_BASE", false},
	{"TOONIFY_API_KEY", true},
	{"TOONIFY_HISTORY_DB", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

var secretKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, k := range reportedKeys {
		if k.secret {
			m[k.name] = true
		}
	}
	return m
}()

// LogCommandStart emits one info entry naming the command, the config
// sources and the sanitised value of every reported env var.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, src Sources) {
	attrs := make([]slog.Attr, 0, len(reportedKeys)+3)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", displayPath(src.ConfigFile)),
		slog.String("dotenv_file", displayPath(src.DotEnvFile)),
	)
	for _, k := range reportedKeys {
		attrs = append(attrs, slog.String(k.name, SanitiseKey(k.name, os.Getenv(k.name))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for secret keys and the value itself
// (or "unset") for everything else.
func SanitiseKey(key, value string) string {
	if secretKeys[key] {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// displayPath returns "none" for an empty path and abbreviates the home
// directory to "~".
func displayPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
