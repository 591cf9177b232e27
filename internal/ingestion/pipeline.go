// Package ingestion loads the song corpus into the vector index. It reads
// the corpus CSV, renders each row's feature document, embeds the documents
// in batches and upserts them with sequential string IDs matching row order.
// This pipeline is invoked by the `toonify ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"strconv"

	"github.com/54b3r/toonify-go/internal/embedder"
	"github.com/54b3r/toonify-go/internal/index"
	"github.com/54b3r/toonify-go/internal/song"
)

// DefaultBatchSize is the number of rows embedded and upserted per batch.
const DefaultBatchSize = 200

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BatchSize is the number of rows per embed and upsert call.
	// Defaults to 200 if zero.
	BatchSize int

	// Recreate drops the existing collection before loading.
	Recreate bool
}

// Pipeline orchestrates the embed → upsert flow for corpus rows.
type Pipeline struct {
	// embedder converts documents into dense vectors.
	embedder embedder.Embedder

	// store receives the embedded records.
	store index.Store

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(e embedder.Embedder, store index.Store, cfg *Config) (*Pipeline, error) {
	if e == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Pipeline{embedder: e, store: store, cfg: cfg}, nil
}

// Records converts rows into index records without embeddings. IDs are the
// stringified row positions starting at zero.
func Records(rows []Row) []index.Record {
	out := make([]index.Record, len(rows))
	for i, r := range rows {
		out[i] = index.Record{
			ID:       strconv.Itoa(i),
			Document: song.Document(r.Features),
			Metadata: song.Metadata(r.Name, r.Artists, r.Features),
		}
	}
	return out
}

// Ingest embeds and stores rows batch by batch and returns the number of
// records written. The collection is created from the dimension of the first
// batch. Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, rows []Row, progress func(msg string)) (int, error) {
	if progress == nil {
		progress = func(string) {}
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("ingestion: no rows to ingest")
	}

	records := Records(rows)
	progress(fmt.Sprintf("adding %d tracks in batches of %d", len(records), p.cfg.BatchSize))

	written := 0
	for start, batchNum := 0, 1; start < len(records); start, batchNum = start+p.cfg.BatchSize, batchNum+1 {
		end := min(start+p.cfg.BatchSize, len(records))
		batch := records[start:end]

		docs := make([]string, len(batch))
		for i, r := range batch {
			docs[i] = r.Document
		}
		vecs, err := p.embedder.Embed(ctx, docs)
		if err != nil {
			return written, fmt.Errorf("ingestion: embed records %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return written, fmt.Errorf("ingestion: embed records %d-%d: got %d vectors for %d documents", start, end, len(vecs), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}

		if start == 0 {
			if err := p.store.EnsureCollection(ctx, len(vecs[0]), p.cfg.Recreate); err != nil {
				return written, fmt.Errorf("ingestion: prepare collection: %w", err)
			}
		}
		if err := p.store.Upsert(ctx, batch); err != nil {
			return written, fmt.Errorf("ingestion: upsert records %d-%d: %w", start, end, err)
		}
		written += len(batch)
		progress(fmt.Sprintf("added batch %d: records %d to %d", batchNum, start, end))
	}
	return written, nil
}
