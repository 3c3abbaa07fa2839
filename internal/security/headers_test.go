package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serveHeaders(h Headers, req *http.Request) http.Header {
	rr := httptest.NewRecorder()
	h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)
	return rr.Result().Header
}

func TestHeadersOnQuoteRoutes(t *testing.T) {
	h := Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 31536000, HSTSIncludeSubdomains: true, Public: []string{"/api/v1/price-table"}}

	req := httptest.NewRequest(http.MethodGet, "https://quote.example.ch/api/v1/quotes/q1", nil)
	req.TLS = &tls.ConnectionState{}
	headers := serveHeaders(h, req)

	require.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", headers.Get("X-Frame-Options"))
	require.Equal(t, "max-age=31536000; includeSubDomains", headers.Get("Strict-Transport-Security"))
	require.Equal(t, "no-store", headers.Get("Cache-Control"))
}

func TestHeadersCacheReferenceData(t *testing.T) {
	h := Headers{Enable: true, Public: []string{"/api/v1/price-table", "/api/v1/areas"}, PublicMaxAge: 60}

	headers := serveHeaders(h, httptest.NewRequest(http.MethodGet, "/api/v1/areas?q=80", nil))
	require.Equal(t, "public, max-age=60", headers.Get("Cache-Control"))
	require.Empty(t, headers.Get("Strict-Transport-Security"))

	headers = serveHeaders(h, httptest.NewRequest(http.MethodPost, "/api/v1/areas", nil))
	require.Equal(t, "no-store", headers.Get("Cache-Control"))
}

func TestHeadersDisabled(t *testing.T) {
	headers := serveHeaders(Headers{EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	require.Empty(t, headers.Get("X-Content-Type-Options"))
	require.Empty(t, headers.Get("Cache-Control"))
}
