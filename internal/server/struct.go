package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/toonify-go/internal/descriptor"
	"github.com/54b3r/toonify-go/internal/pipeline"
	"github.com/54b3r/toonify-go/internal/playlist"
	"github.com/54b3r/toonify-go/internal/song"
	"github.com/54b3r/toonify-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request,
	// including the image upload.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It
	// must exceed RequestTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// RequestTimeout bounds one POST /api/playlist call, pipeline and
	// playlist creation included. Defaults to 3 minutes.
	RequestTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// POST /api/playlist (requests/second). Defaults to 1 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 5 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Assembler creates playlists for ?create=true requests. If nil, those
	// requests are rejected.
	Assembler Assembler
	// History records successful runs and serves GET /api/history. If nil,
	// runs are not recorded and the endpoint returns an empty list.
	History store.History
	// MetricsRegistry receives the server collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Runner executes the image-to-songs pipeline. *pipeline.Pipeline
// satisfies it; tests inject a fake.
type Runner interface {
	Run(ctx context.Context, img descriptor.Image) (*pipeline.Result, error)
}

// Assembler turns a pipeline result into a playlist. *playlist.Assembler
// satisfies it.
type Assembler interface {
	Assemble(ctx context.Context, token string, res *pipeline.Result) (*playlist.Summary, error)
}

// Server is the HTTP front end for the recommendation pipeline.
type Server struct {
	// runner executes the pipeline for each upload.
	runner Runner
	// assembler creates playlists; nil disables ?create=true.
	assembler Assembler
	// history records runs; nil disables persistence.
	history store.History
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors for this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// playlistResponse is the JSON body returned by POST /api/playlist.
type playlistResponse struct {
	// Songs are the recommended tracks, closest first.
	Songs []song.Info `json:"songs"`
	// ShortKeywords holds at most three keywords describing the image.
	ShortKeywords []string `json:"short_keywords"`
	// Features is the parsed feature object, or null.
	Features *song.Features `json:"features"`
	// Playlist is present when ?create=true succeeded.
	Playlist *playlist.Summary `json:"playlist,omitempty"`
}

// historyResponse is the JSON body returned by GET /api/history.
type historyResponse struct {
	// Runs are the most recent runs, newest first.
	Runs []store.Run `json:"runs"`
}

// errorResponse is the JSON body for every non-2xx API response. It never
// carries prompts or raw backend messages.
type errorResponse struct {
	// Error is a short client-facing message.
	Error string `json:"error"`
	// Stage names the pipeline stage that failed, when one did.
	Stage string `json:"stage,omitempty"`
	// Playlist is the playlist that was created before adding tracks
	// failed, so the client can still reach it.
	Playlist *playlist.Summary `json:"playlist,omitempty"`
}
