package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerLimitsWritesSeparately(t *testing.T) {
	handler := Handler{
		Limiter: SlidingWindow{Client: newRedis(t), Prefix: "flyer:ratelimit:"},
		Key:     func(*http.Request) string { return "static" },
		Read:    Rule{Window: time.Minute, Max: 5},
		Write:   Rule{Window: time.Minute, Max: 1},
	}
	counted := handler.Middleware(okHandler())

	serve := func(method string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		counted.ServeHTTP(rr, httptest.NewRequest(method, "/api/v1/quotes", nil))
		return rr
	}

	require.Equal(t, http.StatusOK, serve(http.MethodPost).Code)

	rr := serve(http.MethodPost)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	require.Contains(t, rr.Body.String(), "RATE_LIMITED")
	require.Contains(t, rr.Body.String(), `"class":"write"`)

	rr = serve(http.MethodGet)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "4", rr.Header().Get("X-RateLimit-Remaining"))
}

func TestHandlerSkipsDisabledRule(t *testing.T) {
	handler := Handler{
		Limiter: NewMemory(),
		Key:     ByClientIP,
		Write:   Rule{Window: time.Minute, Max: 1},
	}
	counted := handler.Middleware(okHandler())
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		counted.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/areas", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
	}
}

func TestByClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/quotes", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	require.Equal(t, "ip:10.0.0.7", ByClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.4")
	require.Equal(t, "ip:198.51.100.4", ByClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "ip:203.0.113.9", ByClientIP(req))
}

func TestHandlerFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	var reported error
	handler := Handler{
		Limiter: SlidingWindow{Client: client},
		Key:     func(*http.Request) string { return "err" },
		Read:    Rule{Window: time.Second, Max: 1},
		OnError: func(err error) { reported = err },
	}
	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/quotes", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Error(t, reported)
}
