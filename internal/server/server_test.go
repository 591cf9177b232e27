package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/toonify-go/internal/descriptor"
	"github.com/54b3r/toonify-go/internal/pipeline"
	"github.com/54b3r/toonify-go/internal/playlist"
	"github.com/54b3r/toonify-go/internal/song"
	"github.com/54b3r/toonify-go/internal/store"
)

// fakeRunner is a test double for Runner.
type fakeRunner struct {
	mu    sync.Mutex
	calls int
	res   *pipeline.Result
	err   error
}

func (f *fakeRunner) Run(_ context.Context, img descriptor.Image) (*pipeline.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if img.MIMEType == "" {
		return nil, fmt.Errorf("fakeRunner: image without MIME type")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeAssembler is a test double for Assembler.
type fakeAssembler struct {
	gotToken string
	sum      *playlist.Summary
	err      error
}

func (f *fakeAssembler) Assemble(_ context.Context, token string, _ *pipeline.Result) (*playlist.Summary, error) {
	f.gotToken = token
	return f.sum, f.err
}

func strPtr(s string) *string { return &s }

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Songs: []song.Info{
			{Name: strPtr("Sea Breeze"), Artists: strPtr("Ana")},
			{Name: strPtr("Low Tide")},
		},
		ShortKeywords: []string{"calm", "ocean", "breezy"},
		Description:   "a quiet beach",
	}
}

// newTestServer builds a Server with an isolated registry and a silent
// logger. A nil cfg selects defaults; a nil runner selects a fake returning
// sampleResult.
func newTestServer(t *testing.T, runner Runner, cfg *Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if runner == nil {
		runner = &fakeRunner{res: sampleResult()}
	}
	reg := prometheus.NewRegistry()
	cfg.MetricsRegistry = reg
	cfg.MetricsGatherer = reg
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(runner, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

// pngBytes returns a valid 2x2 PNG.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// uploadRequest builds a multipart POST carrying data in field.
func uploadRequest(t *testing.T, target, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "upload.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "192.0.2.1:1234"
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestNew_NilRunner(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil runner")
	}
}

func TestHandlePlaylist_OK(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	s := newTestServer(t, nil, &Config{History: hist})
	w := serve(s, uploadRequest(t, "/api/playlist", "image", pngBytes(t)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected request ID header")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["playlist"]; ok {
		t.Error("playlist key present without create=true")
	}
	if string(raw["features"]) != "null" {
		t.Errorf("features = %s, want null", raw["features"])
	}

	var resp playlistResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Songs) != 2 || resp.Songs[0].DisplayName() != "Sea Breeze" {
		t.Errorf("songs = %+v", resp.Songs)
	}
	if resp.Songs[1].Artists != nil {
		t.Errorf("missing artists should be null, got %v", *resp.Songs[1].Artists)
	}
	if strings.Join(resp.ShortKeywords, ",") != "calm,ocean,breezy" {
		t.Errorf("short_keywords = %q", resp.ShortKeywords)
	}

	runs, err := hist.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 || runs[0].Description != "a quiet beach" || len(runs[0].Songs) != 2 {
		t.Errorf("history = %+v", runs)
	}
}

func TestHandlePlaylist_BadUploads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantSub    string
	}{
		{
			name:       "wrong field",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "/api/playlist", "photo", pngBytes(t)) },
			wantStatus: http.StatusBadRequest,
			wantSub:    "image field is required",
		},
		{
			name:       "empty image",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "/api/playlist", "image", nil) },
			wantStatus: http.StatusBadRequest,
			wantSub:    "empty",
		},
		{
			name: "not an image",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/playlist", "image", []byte("just some text, not a picture"))
			},
			wantStatus: http.StatusBadRequest,
			wantSub:    "unsupported image",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/playlist", "image", make([]byte, 10<<20+1))
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantSub:    "10 MiB",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/playlist", strings.NewReader("{}"))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			wantStatus: http.StatusBadRequest,
			wantSub:    "multipart",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{res: sampleResult()}
			s := newTestServer(t, runner, nil)

			w := serve(s, tc.req(t))
			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, w.Code, w.Body.String())
			}
			if e := decodeError(t, w); !strings.Contains(e.Error, tc.wantSub) {
				t.Errorf("error %q does not contain %q", e.Error, tc.wantSub)
			}
			if runner.Calls() != 0 {
				t.Errorf("pipeline ran %d times for a rejected upload", runner.Calls())
			}
		})
	}
}

func TestHandlePlaylist_PipelineErrors(t *testing.T) {
	t.Parallel()

	secret := "system prompt leaked: describe the image"
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantStage  string
	}{
		{
			name:       "describe unavailable",
			err:        &pipeline.StageError{Stage: pipeline.StageDescribe, Err: fmt.Errorf("%s: %w", secret, descriptor.ErrServiceUnavailable)},
			wantStatus: http.StatusBadGateway,
			wantStage:  "describe",
		},
		{
			name:       "vector query timeout",
			err:        &pipeline.StageError{Stage: pipeline.StageVectorQuery, Err: context.DeadlineExceeded},
			wantStatus: http.StatusGatewayTimeout,
			wantStage:  "vector_query",
		},
		{
			name:       "empty image from describe",
			err:        &pipeline.StageError{Stage: pipeline.StageDescribe, Err: descriptor.ErrEmptyImage},
			wantStatus: http.StatusBadRequest,
			wantStage:  "describe",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, &fakeRunner{err: tc.err}, nil)

			w := serve(s, uploadRequest(t, "/api/playlist", "image", pngBytes(t)))
			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, w.Code)
			}
			if strings.Contains(w.Body.String(), secret) {
				t.Errorf("response leaked internal error: %s", w.Body.String())
			}
			e := decodeError(t, w)
			if e.Error != msgPipelineFailed || e.Stage != tc.wantStage {
				t.Errorf("body = %+v, want %q at stage %q", e, msgPipelineFailed, tc.wantStage)
			}
		})
	}
}

func TestHandlePlaylist_Create(t *testing.T) {
	t.Parallel()

	sum := &playlist.Summary{
		Playlist:  playlist.Playlist{ID: "pl-1", URL: "https://open.spotify.com/playlist/pl-1", Name: "calm ocean breezy"},
		Requested: 2,
		Added:     2,
	}

	tests := []struct {
		name       string
		assembler  Assembler
		token      string
		wantStatus int
		wantRuns   int
	}{
		{"created", &fakeAssembler{sum: sum}, "sp-token", http.StatusOK, 1},
		{"missing token", &fakeAssembler{sum: sum}, "", http.StatusBadRequest, 0},
		{"not configured", nil, "sp-token", http.StatusNotImplemented, 0},
		{"no tracks", &fakeAssembler{err: playlist.ErrNoTracks}, "sp-token", http.StatusUnprocessableEntity, 1},
		{"token rejected", &fakeAssembler{err: fmt.Errorf("playlist: current user: %w", playlist.ErrUnauthorized)}, "sp-token", http.StatusUnauthorized, 1},
		{"catalog down", &fakeAssembler{err: fmt.Errorf("boom")}, "sp-token", http.StatusBadGateway, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{res: sampleResult()}
			s := newTestServer(t, runner, &Config{Assembler: tc.assembler})

			req := uploadRequest(t, "/api/playlist?create=true", "image", pngBytes(t))
			if tc.token != "" {
				req.Header.Set(spotifyTokenHeader, tc.token)
			}
			w := serve(s, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, w.Code, w.Body.String())
			}
			if runner.Calls() != tc.wantRuns {
				t.Errorf("pipeline runs = %d, want %d", runner.Calls(), tc.wantRuns)
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			if fa := tc.assembler.(*fakeAssembler); fa.gotToken != tc.token {
				t.Errorf("assembler token = %q, want %q", fa.gotToken, tc.token)
			}
			var resp playlistResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Playlist == nil || resp.Playlist.URL != sum.URL || resp.Playlist.Added != 2 {
				t.Errorf("playlist = %+v", resp.Playlist)
			}
		})
	}
}

func TestHandlePlaylist_CreatePartialFailureReturnsLink(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	partial := &playlist.Summary{
		Playlist:  playlist.Playlist{ID: "pl-2", URL: "https://open.spotify.com/playlist/pl-2", Name: "calm ocean"},
		Requested: 150,
		Added:     100,
	}
	fa := &fakeAssembler{sum: partial, err: fmt.Errorf("playlist: add tracks to pl-2: boom")}
	s := newTestServer(t, &fakeRunner{res: sampleResult()}, &Config{Assembler: fa, History: hist})

	req := uploadRequest(t, "/api/playlist?create=true", "image", pngBytes(t))
	req.Header.Set(spotifyTokenHeader, "sp-token")
	w := serve(s, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != msgCreateFailed {
		t.Errorf("error = %q", body.Error)
	}
	if body.Playlist == nil || body.Playlist.URL != partial.URL || body.Playlist.Added != 100 {
		t.Errorf("playlist = %+v", body.Playlist)
	}

	runs, err := hist.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 || runs[0].PlaylistURL != partial.URL {
		t.Errorf("runs = %+v", runs)
	}
}

func TestHandleHistory(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })
	for i := range 3 {
		if err := hist.Save(context.Background(), &store.Run{Description: fmt.Sprintf("run %d", i)}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	s := newTestServer(t, nil, &Config{History: hist})

	tests := []struct {
		target     string
		wantStatus int
		wantRuns   int
	}{
		{"/api/history", http.StatusOK, 3},
		{"/api/history?limit=2", http.StatusOK, 2},
		{"/api/history?limit=0", http.StatusBadRequest, 0},
		{"/api/history?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tc := range tests {
		w := serve(s, httptest.NewRequest(http.MethodGet, tc.target, nil))
		if w.Code != tc.wantStatus {
			t.Errorf("%s: expected %d, got %d", tc.target, tc.wantStatus, w.Code)
			continue
		}
		if tc.wantStatus != http.StatusOK {
			continue
		}
		var resp historyResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Runs) != tc.wantRuns {
			t.Errorf("%s: runs = %d, want %d", tc.target, len(resp.Runs), tc.wantRuns)
		}
	}
}

func TestHandleHistory_NoStore(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"runs":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestRoutes_AuthProtectsAPI(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, &Config{APIKey: "secret"})

	if w := serve(s, uploadRequest(t, "/api/playlist", "image", pngBytes(t))); w.Code != http.StatusUnauthorized {
		t.Errorf("playlist without token: expected 401, got %d", w.Code)
	}
	if w := serve(s, httptest.NewRequest(http.MethodGet, "/api/history", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("history without token: expected 401, got %d", w.Code)
	}
	if w := serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil)); w.Code != http.StatusOK {
		t.Errorf("health must stay public, got %d", w.Code)
	}

	req := uploadRequest(t, "/api/playlist", "image", pngBytes(t))
	req.Header.Set("Authorization", "Bearer secret")
	if w := serve(s, req); w.Code != http.StatusOK {
		t.Errorf("playlist with token: expected 200, got %d", w.Code)
	}
}

func TestRoutes_PlaylistRateLimited(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, &Config{RateLimit: 0.001, RateBurst: 1})

	if w := serve(s, uploadRequest(t, "/api/playlist", "image", pngBytes(t))); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}
	if w := serve(s, uploadRequest(t, "/api/playlist", "image", pngBytes(t))); w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", w.Code)
	}
	if w := serve(s, httptest.NewRequest(http.MethodGet, "/api/history", nil)); w.Code != http.StatusOK {
		t.Errorf("history must not be rate limited, got %d", w.Code)
	}
}
