package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/toonify-go/internal/imageutil"
	"github.com/54b3r/toonify-go/internal/logging"
	"github.com/54b3r/toonify-go/internal/pipeline"
	"github.com/54b3r/toonify-go/internal/playlist"
	"github.com/54b3r/toonify-go/internal/song"
	"github.com/54b3r/toonify-go/internal/store"
)

// playlistOutput is the JSON printed by `toonify playlist`. It matches the
// POST /api/playlist response body.
type playlistOutput struct {
	Songs         []song.Info       `json:"songs"`
	ShortKeywords []string          `json:"short_keywords"`
	Features      *song.Features    `json:"features"`
	Playlist      *playlist.Summary `json:"playlist,omitempty"`
}

// NewPlaylistCmd constructs the `toonify playlist` command, which runs the
// recommendation pipeline on a local image and prints the result as JSON.
func NewPlaylistCmd() *cobra.Command {
	var topK int
	var create bool
	var spotifyToken string

	cmd := &cobra.Command{
		Use:   "playlist <image>",
		Short: "Recommend songs for an image",
		Long: `Describe an image, derive musical features from it and print the nearest
songs from the index as JSON.

With --create a private Spotify playlist is built from the results. The
token must carry the playlist-modify-private scope.

Examples:
  toonify playlist beach.jpg
  toonify playlist --top-k 5 beach.jpg
  toonify playlist --create --spotify-token "$SPOTIFY_TOKEN" beach.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if create && spotifyToken == "" {
				return errors.New("playlist: --create requires --spotify-token")
			}
			k := 0
			if cmd.Flags().Changed("top-k") {
				if topK < 1 {
					return fmt.Errorf("playlist: --top-k must be >= 1, got %d", topK)
				}
				k = topK
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("playlist: %w", err)
			}
			img, err := imageutil.Load(data)
			if err != nil {
				return fmt.Errorf("playlist: %s: %w", args[0], err)
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc, err := buildServices(ctx, log, prometheus.NewRegistry(), k)
			if err != nil {
				return fmt.Errorf("playlist: %w", err)
			}
			defer svc.Close()

			res, err := svc.pipeline.Run(ctx, img)
			if err != nil {
				return fmt.Errorf("playlist: %w", err)
			}

			out := playlistOutput{
				Songs:         res.Songs,
				ShortKeywords: res.ShortKeywords,
				Features:      res.Features,
			}
			if create {
				catalog := playlist.NewClient(playlist.ClientConfigFromEnv(), log)
				summary, err := playlist.NewAssembler(catalog).Assemble(ctx, spotifyToken, res)
				if err != nil {
					if summary == nil || summary.ID == "" {
						return fmt.Errorf("playlist: %w", err)
					}
					out.Playlist = summary
					recordRun(ctx, log, res, summary)
					return writePartial(cmd.OutOrStdout(), out, err)
				}
				out.Playlist = summary
			}

			recordRun(ctx, log, res, out.Playlist)
			return writeOutput(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", pipeline.DefaultTopK, "Number of songs to return")
	cmd.Flags().BoolVar(&create, "create", false, "Create a Spotify playlist from the results")
	cmd.Flags().StringVar(&spotifyToken, "spotify-token", "", "Spotify OAuth bearer token, required with --create")
	return cmd
}

// recordRun saves the run to history when it is enabled. Failures are
// logged only.
func recordRun(ctx context.Context, log *slog.Logger, res *pipeline.Result, pl *playlist.Summary) {
	history, closeHistory := openHistory(log)
	defer closeHistory()
	if history == nil {
		return
	}
	var url string
	if pl != nil {
		url = pl.URL
	}
	if err := history.Save(ctx, store.NewRun(res, url)); err != nil {
		log.Warn("history save failed", slog.Any("error", err))
	}
}

// writePartial prints out for a playlist that was created but not fully
// filled, then returns cause naming the playlist URL.
func writePartial(w io.Writer, out playlistOutput, cause error) error {
	if err := writeOutput(w, out); err != nil {
		return err
	}
	return fmt.Errorf("playlist: created %s but adding tracks failed after %d of %d: %w",
		out.Playlist.URL, out.Playlist.Added, out.Playlist.Requested, cause)
}

func writeOutput(w io.Writer, out playlistOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
