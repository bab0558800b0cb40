package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openkb/docbase/internal/testutil"
)

func TestLiveness(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(nil, testutil.Logger()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestReadiness_NoPool(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(nil, testutil.Logger()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
