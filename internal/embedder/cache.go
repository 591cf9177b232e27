package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrCacheMiss is returned by a KV when the key is absent.
var ErrCacheMiss = errors.New("embedder: cache miss")

// KV is the byte store behind CachedEmbedder.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedEmbedder memoises embeddings in a KV store keyed by model and text
// hash. Cache failures are logged and fall through to the inner embedder.
type CachedEmbedder struct {
	inner  Embedder
	kv     KV
	prefix string
	total  *prometheus.CounterVec
	log    *slog.Logger
}

// NewCachedEmbedder wraps inner. model is folded into every key so that
// switching encoder models never serves stale vectors. total is a counter
// vec labelled "result" (hit|miss) and may be nil.
func NewCachedEmbedder(inner Embedder, kv KV, model string, total *prometheus.CounterVec, log *slog.Logger) *CachedEmbedder {
	if log == nil {
		log = slog.Default()
	}
	return &CachedEmbedder{
		inner:  inner,
		kv:     kv,
		prefix: "toonify:emb:" + model + ":",
		total:  total,
		log:    log,
	}
}

// Embed implements Embedder. Only cache misses are sent to the inner
// embedder, in one batch, and the result is reassembled in input order.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		if vec, ok := c.get(ctx, c.key(t)); ok {
			c.inc("hit")
			out[i] = vec
			continue
		}
		c.inc("miss")
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embedder: embed %d uncached texts: %w", len(missTexts), err)
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder: expected %d embeddings, got %d", len(missTexts), len(vecs))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.put(ctx, c.key(missTexts[j]), vecs[j])
	}
	return out, nil
}

func (c *CachedEmbedder) key(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) inc(result string) {
	if c.total != nil {
		c.total.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.log.Warn("embedding cache get failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	vec, err := bytesToVector(data)
	if err != nil || len(vec) == 0 {
		c.log.Warn("embedding cache entry unreadable", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) put(ctx context.Context, key string, vec []float32) {
	if err := c.kv.Set(ctx, key, vectorToBytes(vec)); err != nil {
		c.log.Warn("embedding cache set failed", slog.String("key", key), slog.Any("error", err))
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedder: invalid cache entry length %d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
