package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HealthChecker probes a backend without spending tokens.
type HealthChecker interface {
	// HealthCheck returns nil when the backend answered a metadata request.
	HealthCheck(ctx context.Context) error
}

// httpHealthCheck issues a GET against a cheap metadata endpoint.
type httpHealthCheck struct {
	url    string
	header http.Header
	client *http.Client
}

// HealthCheck implements HealthChecker.
func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: build health request: %w", err)
	}
	for k, vs := range h.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: health request: HTTP %d", resp.StatusCode)
	}
	return nil
}

// HealthCheckFor returns a token-free readiness probe for the configured
// backend, or nil when the backend exposes no suitable endpoint (ark).
func HealthCheckFor(cfg *Config) HealthChecker {
	client := &http.Client{Timeout: 5 * time.Second}
	switch cfg.Backend {
	case BackendOllama:
		return &httpHealthCheck{
			url:    strings.TrimRight(cfg.Ollama.Host, "/") + "/api/tags",
			client: client,
		}
	case BackendOpenAI:
		return &httpHealthCheck{
			url:    "https://api.openai.com/v1/models",
			header: http.Header{"Authorization": {"Bearer " + cfg.OpenAI.APIKey}},
			client: client,
		}
	case BackendAzure:
		az := cfg.AzureOpenAI
		return &httpHealthCheck{
			url:    strings.TrimRight(az.Endpoint, "/") + "/openai/models?api-version=" + az.APIVersion,
			header: http.Header{"api-key": {az.APIKey}},
			client: client,
		}
	case BackendGemini:
		return &httpHealthCheck{
			url:    "https://generativelanguage.googleapis.com/v1beta/models",
			header: http.Header{"x-goog-api-key": {cfg.Gemini.APIKey}},
			client: client,
		}
	default:
		return nil
	}
}
