package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"palisade-hq/bulwark/pkg/config"
	"palisade-hq/bulwark/pkg/providerfactory"
	"palisade-hq/bulwark/pkg/proxy"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		Upstreams: map[string]config.UpstreamConfig{
			// Never dialed: tests only exercise routing and probes.
			"primary": {Type: "generic", BaseURL: "http://127.0.0.1:9", TimeoutMs: 1000},
		},
	}
	config.ApplyDefaults(cfg)

	manager, err := providerfactory.NewManagerFromConfig(cfg.Upstreams)
	if err != nil {
		t.Fatalf("NewManagerFromConfig: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	registry, err := proxy.NewRegistry(cfg, manager, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { registry.Close() })

	return New(cfg, registry, manager, BuildInfo{Version: "test", Commit: "deadbeef"})
}

func TestHandler_Routes(t *testing.T) {
	handler := testServer(t).Handler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodGet, "/v1/chat", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestHandler_VersionBody(t *testing.T) {
	handler := testServer(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var info struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if info.Version != "test" || info.Commit != "deadbeef" {
		t.Errorf("version info = %+v", info)
	}
}

func TestHandler_ChatValidation(t *testing.T) {
	handler := testServer(t).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"model": "m"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("middleware chain did not attach a request ID")
	}
}

func TestHandler_MetricsRoute(t *testing.T) {
	srv := testServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, srv.config.Telemetry.Metrics.Path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rec.Code)
	}
}

func TestServer_StartAndStop(t *testing.T) {
	srv := testServer(t)
	srv.config.Server.ListenAddress = "127.0.0.1:0"

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for !srv.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !srv.IsRunning() {
		t.Fatal("server did not start")
	}

	srv.Stop()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if srv.IsRunning() {
		t.Error("IsRunning after shutdown")
	}
}
