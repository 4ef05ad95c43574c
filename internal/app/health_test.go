package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newHealthServer(pingFn func(context.Context) error) (*HTTPServer, *Service) {
	svc, deps := newTestService(Options{})
	deps.store.pingFn = pingFn
	return NewHTTPServer(svc, "*", nil), svc
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newHealthServer(nil)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["ok"] != true {
		t.Errorf("expected ok=true, got %v", response["ok"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantCode   int
		wantStatus string
		wantDB     string
	}{
		{name: "database up", wantCode: http.StatusOK, wantStatus: "ready", wantDB: "ok"},
		{name: "database down", pingErr: errors.New("connection refused"), wantCode: http.StatusServiceUnavailable, wantStatus: "not_ready", wantDB: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newHealthServer(func(context.Context) error { return tt.pingErr })

			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

			if rr.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rr.Code)
			}
			var response struct {
				OK     bool   `json:"ok"`
				Status string `json:"status"`
				Checks struct {
					Database struct {
						Status string `json:"status"`
						Error  string `json:"error"`
					} `json:"database"`
				} `json:"checks"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if response.OK != (tt.pingErr == nil) || response.Status != tt.wantStatus {
				t.Errorf("unexpected readiness %+v", response)
			}
			if response.Checks.Database.Status != tt.wantDB {
				t.Errorf("expected database status=%s, got %s", tt.wantDB, response.Checks.Database.Status)
			}
			if tt.pingErr != nil && response.Checks.Database.Error != tt.pingErr.Error() {
				t.Errorf("expected database error %q, got %q", tt.pingErr, response.Checks.Database.Error)
			}
		})
	}
}

func TestHealthEndpoint_OptionsRequest(t *testing.T) {
	server, _ := newHealthServer(nil)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/leads", nil))

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for OPTIONS, got %d", rr.Code)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	server, _ := newHealthServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin=*, got %v", origin)
	}
	if cache := rr.Header().Get("Cache-Control"); cache != "no-store" {
		t.Errorf("expected Cache-Control=no-store, got %v", cache)
	}
	if id := rr.Header().Get("X-Request-ID"); id != "req-123" {
		t.Errorf("expected request id to be echoed, got %q", id)
	}
}

func TestPingMethod(t *testing.T) {
	for _, pingErr := range []error{nil, errors.New("connection failed")} {
		_, svc := newHealthServer(func(context.Context) error { return pingErr })
		if err := svc.Ping(context.Background()); !errors.Is(err, pingErr) {
			t.Errorf("Ping() error = %v, want %v", err, pingErr)
		}
	}
}
