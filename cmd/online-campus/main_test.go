package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aanand-mishra/online-campus/internal/config"
	"github.com/aanand-mishra/online-campus/internal/http/middleware"
	"github.com/aanand-mishra/online-campus/internal/storage/memory"
)

func TestRouter(t *testing.T) {
	router := newRouter(memory.New(), config.Listing{PageSize: 8}, middleware.NewMetrics(prometheus.NewRegistry()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/students",
		strings.NewReader(`{"firstName":"John","lastName":"Doe"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}

	// "export" must not be captured by the {id} pattern.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/students/export", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/students", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PATCH status = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `campus_http_requests_total{code="201",route="create_student"} 1`) {
		t.Fatalf("metrics missing create_student counter:\n%s", rec.Body)
	}
}

func TestOpenStorage(t *testing.T) {
	s, err := openStorage(&config.Config{Storage: config.Storage{Driver: config.DriverMemory}})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	_ = s.Close()

	s, err = openStorage(&config.Config{Storage: config.Storage{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "campus.db"),
	}})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	_ = s.Close()

	if _, err := openStorage(&config.Config{Storage: config.Storage{Driver: "mongo"}}); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestSetupLogger(t *testing.T) {
	for _, env := range []string{"dev", "staging", "prod", ""} {
		if setupLogger(env) == nil {
			t.Errorf("setupLogger(%q) returned nil", env)
		}
	}
}
