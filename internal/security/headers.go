package security

import (
	"net/http"
	"strconv"
	"strings"
)

// Headers sets the response security headers. Quote responses carry contact
// data and are never cached; reference data under Public may be cached for
// PublicMaxAge seconds.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	Public       []string
	PublicMaxAge int
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		headers.Set("Cache-Control", h.cacheControl(r))
		if hsts != "" && r.TLS != nil {
			headers.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) cacheControl(r *http.Request) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return "no-store"
	}
	for _, prefix := range h.Public {
		if strings.HasPrefix(r.URL.Path, prefix) {
			maxAge := h.PublicMaxAge
			if maxAge <= 0 {
				maxAge = 300
			}
			return "public, max-age=" + strconv.Itoa(maxAge)
		}
	}
	return "no-store"
}

func (h Headers) hstsValue() string {
	if !h.EnableHSTS {
		return ""
	}
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 31536000
	}
	value := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}
