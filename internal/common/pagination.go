package common

import (
	"net/http"
	"strconv"
	"strings"
)

// QueryInt reads an integer query parameter, falling back to def when it is
// absent or malformed.
func QueryInt(r *http.Request, name string, def int) int {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// ParseLimit extracts the limit query parameter bounded by max.
func ParseLimit(r *http.Request, def, max int) int {
	limit := QueryInt(r, "limit", def)
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}
