package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routeOf labels a request by its chi route pattern so quote ids never end
// up in metric labels or span names. It is only meaningful once the router
// has matched, so middlewares call it after next.ServeHTTP.
func routeOf(r *http.Request, fallback string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if route := rc.RoutePattern(); route != "" {
			return route
		}
	}
	return fallback
}
