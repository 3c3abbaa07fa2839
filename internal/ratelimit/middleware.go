package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/flyer-quote/internal/common"
)

// Allower decides whether one more event fits rule for key.
type Allower interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
}

// Handler enforces Read on safe methods and Write on everything else. A
// disabled rule lets the request class through unchecked.
type Handler struct {
	Limiter Allower
	Key     func(*http.Request) string
	Read    Rule
	Write   Rule
	OnError func(error)
}

// Middleware fails open when the limiter errors.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Key == nil || h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		class, rule := "read", h.Read
		if !isSafe(r.Method) {
			class, rule = "write", h.Write
		}
		if rule.disabled() {
			next.ServeHTTP(w, r)
			return
		}
		dec, err := h.Limiter.Allow(r.Context(), class+":"+h.Key(r), rule)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.Max))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(dec.Reset.Unix(), 10))
		if !dec.Allowed {
			retryAfter := int(time.Until(dec.Reset).Round(time.Second).Seconds())
			headers.Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many quote requests, retry later", map[string]any{
				"class": class,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isSafe(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// ByClientIP keys requests by the first forwarded address, then X-Real-IP,
// then the peer address.
func ByClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return "ip:" + first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return "ip:" + ip
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return "ip:" + host
	}
	return "ip:" + addr
}
