package embedder

import (
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments of chat/completion models
// that are not suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check run before the embedder is constructed. It
// logs the resolved encoder identity, which must match the one the index was
// built with, and warns if EMBEDDING_MODEL looks like a chat model rather
// than an embedding model. Encoder drift is not detectable at runtime.
func Validate(log *slog.Logger, info Info) {
	log.Info("embedder: resolved encoder",
		slog.String("backend", info.Backend),
		slog.String("model", info.Model),
		slog.Int("dimensions", info.Dimensions),
	)

	if os.Getenv("EMBEDDING_PROVIDER") == "" && info.Backend != "ollama" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER as embedding backend",
			slog.String("backend", info.Backend),
			slog.String("hint", "set EMBEDDING_PROVIDER explicitly so queries and ingestion use the same encoder"),
		)
	}

	if looksLikeChatModel(info.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model; "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", info.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
}
