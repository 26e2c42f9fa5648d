package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// RequestMeta is the request-scoped metadata attached to audit event context.
type RequestMeta struct {
	IP        string
	UserAgent string
	Browser   string
	OS        string
	Path      string
	Method    string
}

type contextKeyRequestMeta struct{}

// GetRequestMeta retrieves request metadata from the context.
func GetRequestMeta(ctx context.Context) RequestMeta {
	if meta, ok := ctx.Value(contextKeyRequestMeta{}).(RequestMeta); ok {
		return meta
	}
	return RequestMeta{}
}

// WithRequestMeta injects request metadata into a context for tests.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, contextKeyRequestMeta{}, meta)
}

// CaptureRequestMeta extracts client IP and a parsed user agent so handlers
// can stamp them into audit event context without touching the raw request.
func CaptureRequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawUA := r.Header.Get("User-Agent")
		ua := useragent.New(rawUA)
		browser, version := ua.Browser()

		meta := RequestMeta{
			IP:        clientIP(r),
			UserAgent: rawUA,
			Browser:   strings.TrimSpace(browser + " " + version),
			OS:        ua.OS(),
			Path:      r.URL.Path,
			Method:    r.Method,
		}

		ctx := WithRequestMeta(r.Context(), meta)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the leftmost X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
