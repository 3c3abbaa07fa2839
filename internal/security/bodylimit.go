package security

import (
	"errors"
	"net/http"

	"github.com/noah-isme/flyer-quote/internal/common"
)

// BodyLimit caps request payloads. Declared oversize bodies are refused up
// front; chunked bodies are cut off while the handler reads them.
type BodyLimit struct {
	Max int64
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			WriteTooLarge(w, b.Max)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}

// TooLarge reports whether err came from reading past the body limit and
// returns the limit.
func TooLarge(err error) (int64, bool) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return mbe.Limit, true
	}
	return 0, false
}

// WriteTooLarge renders the 413 envelope.
func WriteTooLarge(w http.ResponseWriter, limit int64) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", map[string]int64{"maxBytes": limit})
}
