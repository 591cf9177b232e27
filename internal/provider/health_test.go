package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckFor_Ollama(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := HealthCheckFor(&Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: srv.URL + "/"}})
	if hc == nil {
		t.Fatal("HealthCheckFor(ollama) = nil")
	}
	if err := hc.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if gotPath != "/api/tags" {
		t.Errorf("path = %q, want /api/tags", gotPath)
	}
}

func TestHealthCheckFor_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hc := HealthCheckFor(&Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: srv.URL}})
	if err := hc.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck() expected error for 503, got nil")
	}
}

func TestHealthCheckFor_AzureSendsKey(t *testing.T) {
	t.Parallel()

	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		gotVersion = r.URL.Query().Get("api-version")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := HealthCheckFor(&Config{
		Backend:     BackendAzure,
		AzureOpenAI: ProviderAzureOpenAI{APIKey: "secret", Endpoint: srv.URL, APIVersion: "2024-02-01"},
	})
	if err := hc.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if gotKey != "secret" || gotVersion != "2024-02-01" {
		t.Errorf("api-key=%q api-version=%q", gotKey, gotVersion)
	}
}

func TestHealthCheckFor_ArkHasNoProbe(t *testing.T) {
	t.Parallel()

	if hc := HealthCheckFor(&Config{Backend: BackendArk}); hc != nil {
		t.Errorf("HealthCheckFor(ark) = %T, want nil", hc)
	}
}
