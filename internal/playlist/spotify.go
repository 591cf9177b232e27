package playlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/54b3r/toonify-go/internal/version"
)

// DefaultBaseURL is the public Spotify Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1"

// ErrUnauthorized is returned when the catalog rejects the bearer token.
var ErrUnauthorized = errors.New("playlist: spotify token rejected")

// APIError is a non-2xx response from the catalog.
type APIError struct {
	// StatusCode is the HTTP status returned.
	StatusCode int
	// Message is the error message from the response body, if any.
	Message string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("playlist: spotify returned %d", e.StatusCode)
	}
	return fmt.Sprintf("playlist: spotify returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps 401 responses onto ErrUnauthorized.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// ClientConfig configures the Spotify client.
type ClientConfig struct {
	// BaseURL is the API root. Defaults to DefaultBaseURL.
	BaseURL string
	// RetryMax is the number of retries for transient failures. Defaults to 3.
	RetryMax int
	// RetryWaitMin is the minimum backoff between retries. Defaults to 1s.
	RetryWaitMin time.Duration
	// RetryWaitMax is the maximum backoff between retries. Defaults to 5s.
	RetryWaitMax time.Duration
}

// ClientConfigFromEnv reads SPOTIFY_API_BASE.
func ClientConfigFromEnv() ClientConfig {
	return ClientConfig{BaseURL: os.Getenv("SPOTIFY_API_BASE")}
}

// Client is a minimal Spotify Web API client covering the calls needed to
// build a playlist. It is safe for concurrent use; the bearer token is
// supplied per call.
type Client struct {
	base string
	http *retryablehttp.Client
}

// NewClient builds a Client backed by a retrying HTTP client.
func NewClient(cfg ClientConfig, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = 5 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMax = cfg.RetryWaitMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	rc.CheckRetry = noRetryOn500(retryablehttp.ErrorPropagatedRetryPolicy)
	rc.Logger = nil
	if log != nil {
		rc.Logger = log
	}

	return &Client{base: strings.TrimRight(cfg.BaseURL, "/"), http: rc}
}

// noRetryOn500 wraps policy so that 500 responses and cancelled contexts
// are not retried. Other 5xx and 429 responses follow policy.
func noRetryOn500(policy retryablehttp.CheckRetry) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if resp != nil && resp.StatusCode == http.StatusInternalServerError {
			return false, err
		}
		return policy(ctx, resp, err)
	}
}

// CurrentUser returns the Spotify user ID that owns token.
func (c *Client) CurrentUser(ctx context.Context, token string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/me", nil, &out); err != nil {
		return "", fmt.Errorf("playlist: current user: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("playlist: current user: empty id")
	}
	return out.ID, nil
}

// SearchTrack returns the URI of the best match for query, or "" when the
// catalog has no match.
func (c *Client) SearchTrack(ctx context.Context, token, query string) (string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", "1")

	var out struct {
		Tracks struct {
			Items []struct {
				URI string `json:"uri"`
			} `json:"items"`
		} `json:"tracks"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/search?"+q.Encode(), nil, &out); err != nil {
		return "", fmt.Errorf("playlist: search: %w", err)
	}
	if len(out.Tracks.Items) == 0 {
		return "", nil
	}
	return out.Tracks.Items[0].URI, nil
}

// CreatePlaylist creates a private playlist for userID.
func (c *Client) CreatePlaylist(ctx context.Context, token, userID, name, description string) (Playlist, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      false,
	}
	var out struct {
		ID           string `json:"id"`
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
	}
	path := "/users/" + url.PathEscape(userID) + "/playlists"
	if err := c.do(ctx, token, http.MethodPost, path, body, &out); err != nil {
		return Playlist{}, fmt.Errorf("playlist: create: %w", err)
	}
	return Playlist{ID: out.ID, URL: out.ExternalURLs.Spotify, Name: name}, nil
}

// AddTracks appends uris to a playlist. Callers chunk to the API limit.
func (c *Client) AddTracks(ctx context.Context, token, playlistID string, uris []string) error {
	path := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	if err := c.do(ctx, token, http.MethodPost, path, map[string]any{"uris": uris}, nil); err != nil {
		return fmt.Errorf("playlist: add tracks: %w", err)
	}
	return nil
}

// do sends one JSON request and decodes a JSON response into out when out
// is non-nil.
func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	var payload any
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError reads Spotify's {"error":{"status":N,"message":"..."}} body.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Error.Message
	}
	return apiErr
}
