package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/noah-isme/flyer-quote/internal/http/middleware"
)

func okHandler() http.Handler {
	return middleware.RequireJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequireJSONRejectsForm(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/api/v1/quotes/q1/audience", strings.NewReader("audience=all"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	okHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}

func TestRequireJSONAccepts(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/api/v1/quotes/q1/audience", strings.NewReader(`{"audience":"all"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	okHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	empty := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)
	rec = httptest.NewRecorder()
	okHandler().ServeHTTP(rec, empty)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected empty body to pass, got %d", rec.Code)
	}
}
