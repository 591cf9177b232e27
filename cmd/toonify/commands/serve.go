package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/toonify-go/internal/logging"
	"github.com/54b3r/toonify-go/internal/playlist"
	"github.com/54b3r/toonify-go/internal/server"
)

// NewServeCmd constructs the `toonify serve` command.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the toonify HTTP API",
		Long: `Start the toonify HTTP API.

Endpoints:
  POST /api/playlist   multipart field "image"; ?create=true with an
                       X-Spotify-Token header also creates a playlist
  GET  /api/history    recent runs
  GET  /api/health     liveness
  GET  /api/ready      model, embedder and index reachability
  GET  /metrics        Prometheus metrics

Set TOONIFY_API_KEY to require a Bearer token on /api/playlist and
/api/history.

Examples:
  toonify serve
  toonify serve --port 9090
  INDEX_BACKEND=qdrant toonify serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			svc, err := buildServices(ctx, log, prometheus.DefaultRegisterer, 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer svc.Close()

			history, closeHistory := openHistory(log)
			defer closeHistory()

			catalog := playlist.NewClient(playlist.ClientConfigFromEnv(), log)

			srv, err := server.New(svc.pipeline, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   svc.pingers,
				APIKey:    os.Getenv("TOONIFY_API_KEY"),
				Assembler: playlist.NewAssembler(catalog),
				History:   history,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting", slog.Int("readiness_checks", len(svc.pingers)))
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	return cmd
}
