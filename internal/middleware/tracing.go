package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request named "METHOD /route/{pattern}".
// otelhttp formats the name again after the handler only when r.Pattern is
// set on its own request, which later middleware cloning the request
// prevents, so the name is also set once chi has matched the route.
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			trace.SpanFromContext(r.Context()).SetName(spanName("", r))
		})
		return otelhttp.NewHandler(named, "http.server",
			otelhttp.WithSpanNameFormatter(spanName))
	}
}

// spanName uses the matched chi route, or the raw path when nothing matched.
func spanName(_ string, r *http.Request) string {
	if pattern := routePattern(r); pattern != unmatchedRoute {
		return r.Method + " " + pattern
	}
	return r.Method + " " + r.URL.Path
}
