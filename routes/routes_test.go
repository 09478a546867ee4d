package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tryon-gateway/app"
	"github.com/upb/tryon-gateway/config"
	"github.com/upb/tryon-gateway/middleware"
	"github.com/upb/tryon-gateway/utils"
	"go.uber.org/zap"
)

func testDependencies(t *testing.T) *app.Dependencies {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			RequestTimeout: time.Minute,
			AllowedOrigins: []string{"http://localhost:*"},
		},
		Providers: config.ProvidersConfig{
			Segmind: config.VendorConfig{APIKey: "sg-key", BaseURL: "http://segmind.invalid", Timeout: time.Second},
		},
		Polling: config.PollingConfig{
			FASHNInterval:      time.Millisecond,
			FASHNMaxAttempts:   1,
			FitroomInterval:    time.Millisecond,
			FitroomMaxAttempts: 1,
		},
		Images: config.ImageConfig{MaxSide: 256, JPEGQuality: 90, UploadMaxBytes: 1 << 20},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	return deps
}

func TestSetupRoutes(t *testing.T) {
	router := SetupRoutes(testDependencies(t))

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"liveness", http.MethodGet, "/healthz", http.StatusOK},
		{"readiness", http.MethodGet, "/readyz", http.StatusOK},
		{"status", http.MethodGet, "/api/v1/status", http.StatusOK},
		{"vendors", http.MethodGet, "/api/v1/vendors", http.StatusOK},
		{"metrics", http.MethodGet, "/api/v1/metrics", http.StatusOK},
		{"try-on without body", http.MethodPost, "/api/v1/tryon", http.StatusBadRequest},
		{"try-on wrong method", http.MethodGet, "/api/v1/tryon", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestSetupRoutes_NotFoundBody(t *testing.T) {
	router := SetupRoutes(testDependencies(t))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "not_found", response.Error)
	assert.Equal(t, "endpoint not found", response.Message)
}

func TestSetupRoutes_CORSExposesTryOnHeaders(t *testing.T) {
	router := SetupRoutes(testDependencies(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendors", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Tryon-Job-Id")
}
