// Package middleware holds cross-origin handling for the browser extension and
// the security headers sent with every response.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds the configuration for CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists permitted origins. An entry ending in "*" matches by
	// prefix, e.g. "chrome-extension://*".
	AllowedOrigins []string

	// AllowedMethods default: GET, POST, DELETE, OPTIONS
	AllowedMethods []string

	// AllowedHeaders default: Content-Type, X-Request-ID, X-Insight-Stream
	AllowedHeaders []string

	// MaxAge is the preflight cache duration in seconds. Default: 600
	MaxAge int

	Logger *slog.Logger
}

func (c CORSConfig) withDefaults() CORSConfig {
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Content-Type", "X-Request-ID", "X-Insight-Stream"}
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 600
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// OriginMatcher decides whether an Origin header is allowed.
type OriginMatcher struct {
	exact    map[string]bool
	prefixes []string
}

// NewOriginMatcher normalizes origins: lowercase, no trailing slash.
func NewOriginMatcher(origins []string) *OriginMatcher {
	m := &OriginMatcher{exact: make(map[string]bool, len(origins))}
	for _, o := range origins {
		o = normalizeOrigin(o)
		if o == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(o, "*"); ok {
			m.prefixes = append(m.prefixes, prefix)
			continue
		}
		m.exact[o] = true
	}
	return m
}

// IsAllowed reports whether origin matches an allowed entry.
func (m *OriginMatcher) IsAllowed(origin string) bool {
	origin = normalizeOrigin(origin)
	if origin == "" {
		return false
	}
	if m.exact[origin] {
		return true
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}

func normalizeOrigin(o string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(o)), "/")
}

// CORS sets CORS headers for allowed origins and answers preflight requests
// with 204. Disallowed origins pass through without headers, so the browser
// blocks the response.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	config = config.withDefaults()
	matcher := NewOriginMatcher(config.AllowedOrigins)
	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			if !matcher.IsAllowed(origin) {
				config.Logger.Warn("CORS: origin not allowed",
					slog.String("origin", origin),
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Trace-Id")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
