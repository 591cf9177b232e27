package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/54b3r/toonify-go/internal/descriptor"
	"github.com/54b3r/toonify-go/internal/imageutil"
	"github.com/54b3r/toonify-go/internal/logging"
	"github.com/54b3r/toonify-go/internal/pipeline"
	"github.com/54b3r/toonify-go/internal/playlist"
	"github.com/54b3r/toonify-go/internal/store"
)

// multipartOverhead is the slack allowed above imageutil.MaxBytes for
// multipart boundaries and headers.
const multipartOverhead = 1 << 20

// spotifyTokenHeader carries the caller's Spotify bearer token.
const spotifyTokenHeader = "X-Spotify-Token"

// Client-facing messages. Backend detail stays in the logs.
const (
	msgPipelineFailed = "could not build playlist"
	msgCreateFailed   = "could not create playlist"
)

// handlePlaylist handles POST /api/playlist. The multipart field "image"
// carries the picture. With ?create=true and an X-Spotify-Token header the
// result is also saved as a Spotify playlist.
func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	create := r.URL.Query().Get("create") == "true"
	token := r.Header.Get(spotifyTokenHeader)
	if create {
		if s.assembler == nil {
			writeJSON(w, r, http.StatusNotImplemented, errorResponse{Error: "playlist creation is not configured"})
			return
		}
		if token == "" {
			writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: spotifyTokenHeader + " header is required with create=true"})
			return
		}
	}

	data, status, msg := readUpload(w, r)
	if status != 0 {
		writeJSON(w, r, status, errorResponse{Error: msg})
		return
	}
	img, err := imageutil.Load(data)
	if err != nil {
		log.Info("rejected upload", slog.Any("error", err))
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: uploadMessage(err)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	s.metrics.activeRuns.Inc()
	res, err := s.runner.Run(ctx, img)
	s.metrics.activeRuns.Dec()
	if err != nil {
		status, body := pipelineError(err)
		s.metrics.playlistRequestsTotal.WithLabelValues(outcomeLabel(status)).Inc()
		log.Error("pipeline failed", slog.String("stage", body.Stage), slog.Any("error", err))
		writeJSON(w, r, status, body)
		return
	}

	resp := playlistResponse{
		Songs:         res.Songs,
		ShortKeywords: res.ShortKeywords,
		Features:      res.Features,
	}

	if create {
		sum, err := s.assembler.Assemble(ctx, token, res)
		if err != nil {
			status, body := assembleError(err)
			if sum != nil && sum.ID != "" {
				body.Playlist = sum
				log = log.With(slog.String("playlist_url", sum.URL))
				s.record(ctx, res, sum)
			}
			s.metrics.playlistRequestsTotal.WithLabelValues(outcomeLabel(status)).Inc()
			log.Error("playlist creation failed", slog.Any("error", err))
			writeJSON(w, r, status, body)
			return
		}
		resp.Playlist = sum
	}

	s.record(ctx, res, resp.Playlist)
	s.metrics.playlistRequestsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, r, http.StatusOK, resp)
}

// readUpload extracts the "image" form file. A non-zero status means the
// request must be rejected with msg.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, imageutil.MaxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(imageutil.MaxBytes + multipartOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, http.StatusRequestEntityTooLarge, "image exceeds 10 MiB"
		}
		return nil, http.StatusBadRequest, "expected multipart/form-data with an image field"
	}
	f, _, err := r.FormFile("image")
	if err != nil {
		return nil, http.StatusBadRequest, "image field is required"
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, imageutil.MaxBytes+1))
	if err != nil {
		return nil, http.StatusBadRequest, "could not read image"
	}
	if len(data) > imageutil.MaxBytes {
		return nil, http.StatusRequestEntityTooLarge, "image exceeds 10 MiB"
	}
	return data, 0, ""
}

func uploadMessage(err error) string {
	if errors.Is(err, descriptor.ErrEmptyImage) {
		return "image is empty"
	}
	return "unsupported image, send a JPEG, PNG, GIF or WebP file"
}

// pipelineError maps a pipeline failure onto a status and a generic body
// that names only the failed stage.
func pipelineError(err error) (int, errorResponse) {
	body := errorResponse{Error: msgPipelineFailed}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		body.Stage = string(se.Stage)
	}
	switch {
	case errors.Is(err, descriptor.ErrEmptyImage):
		return http.StatusBadRequest, body
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, body
	default:
		return http.StatusBadGateway, body
	}
}

// assembleError maps a playlist creation failure onto a status and body.
func assembleError(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, playlist.ErrNoTracks):
		return http.StatusUnprocessableEntity, errorResponse{Error: "no recommended songs were found on Spotify"}
	case errors.Is(err, playlist.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: "spotify token rejected"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorResponse{Error: msgCreateFailed}
	default:
		return http.StatusBadGateway, errorResponse{Error: msgCreateFailed}
	}
}

func outcomeLabel(status int) string {
	switch {
	case status == http.StatusGatewayTimeout:
		return "timeout"
	case status >= 500:
		return "error"
	default:
		return "rejected"
	}
}

// record saves a successful run. Failures are logged and never surface to
// the client.
func (s *Server) record(ctx context.Context, res *pipeline.Result, pl *playlist.Summary) {
	if s.history == nil {
		return
	}
	var url string
	if pl != nil {
		url = pl.URL
	}
	run := store.NewRun(res, url)
	// The save outlives the request deadline.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
	defer cancel()
	if err := s.history.Save(saveCtx, run); err != nil {
		logging.FromContext(ctx).Warn("history save failed", slog.Any("error", err))
	}
}

// handleHistory handles GET /api/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultRecent
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	resp := historyResponse{Runs: []store.Run{}}
	if s.history != nil {
		runs, err := s.history.Recent(r.Context(), limit)
		if err != nil {
			logging.FromContext(r.Context()).Error("history read failed", slog.Any("error", err))
			writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "could not read history"})
			return
		}
		resp.Runs = runs
	}
	writeJSON(w, r, http.StatusOK, resp)
}
