// Package embedder converts text into dense vectors. The same encoder, model
// and version must be used to build the song index and to encode queries;
// a drift between the two degrades retrieval silently rather than failing.
package embedder

import (
	"context"
	"fmt"
)

// Embedder converts a batch of texts into embeddings. Implementations must
// be safe to call from multiple goroutines, must return a slice parallel to
// texts, and must produce the same vector for an item whether it is encoded
// alone or as part of a batch.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EncodeOne embeds a single text.
func EncodeOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	out, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 || len(out[0]) == 0 {
		return nil, fmt.Errorf("embedder: expected 1 embedding, got %d", len(out))
	}
	return out[0], nil
}
