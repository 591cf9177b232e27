package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/toonify-go/internal/embedder"
	"github.com/54b3r/toonify-go/internal/ingestion"
	"github.com/54b3r/toonify-go/internal/logging"
)

// NewIngestCmd constructs the `toonify ingest` command, which loads the song
// corpus CSV into the configured vector index.
func NewIngestCmd() *cobra.Command {
	var csvPath string
	var recreate bool
	var batchSize int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load the song corpus CSV into the vector index",
		Long: `Read a song CSV, render each row's feature text, embed it and write it to
the vector index.

The CSV needs a header with name, artists, danceability, energy,
acousticness, liveness, tempo and valence. Row positions become record IDs,
so re-ingesting the same file replaces records in place.

The embedding model used here must be the one the server queries with.

Examples:
  toonify ingest --csv spotify_songs.csv
  toonify ingest --csv spotify_songs.csv --recreate
  INDEX_BACKEND=milvus toonify ingest --csv spotify_songs.csv --batch-size 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if csvPath == "" {
				return errors.New("ingest: --csv is required")
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			f, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer f.Close()

			rows, err := ingestion.ReadCSV(f)
			if err != nil {
				return fmt.Errorf("ingest: %s: %w", csvPath, err)
			}
			log.Info("corpus read", slog.String("path", csvPath), slog.Int("rows", len(rows)))

			emb, info, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			embedder.Validate(log, info)

			idx, err := openIndex(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer idx.Close()

			p, err := ingestion.NewPipeline(emb, idx, &ingestion.Config{
				BatchSize: batchSize,
				Recreate:  recreate,
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			n, err := p.Ingest(ctx, rows, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("ingestion complete", slog.Int("records", n), slog.String("backend", idx.Name()))
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d songs into %s\n", n, idx.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "Path to the song corpus CSV")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "Drop the existing collection before loading")
	cmd.Flags().IntVar(&batchSize, "batch-size", ingestion.DefaultBatchSize, "Rows embedded and written per batch")
	return cmd
}
