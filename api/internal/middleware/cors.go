package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"facility-compliance-system/shared/httpx"
)

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	defaultCORSHeaders = []string{"Content-Type", "X-Request-ID", httpx.ActorHeader}
	exposedHeaders     = "X-Request-ID, Retry-After"
)

// CORSMiddleware answers preflight requests itself and decorates the rest. Origins may be
// exact ("https://ops.example"), "*", or a subdomain wildcard ("https://*.plant.example").
// An empty list allows any origin.
type CORSMiddleware struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
	Skip             func(*http.Request) bool
}

func (m CORSMiddleware) Wrap(next http.Handler) http.Handler {
	methods := m.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := m.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ", ")
	maxAge := ""
	if secs := int(m.MaxAge / time.Second); secs > 0 {
		maxAge = strconv.Itoa(secs)
	}
	match := originMatcher(m.AllowedOrigins)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		allowed, wild := match(origin)
		if !allowed {
			if preflight {
				httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "origin not allowed", map[string]any{"origin": origin})
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if wild && !m.AllowCredentials {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
		}
		if m.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if !preflight {
			h.Set("Access-Control-Expose-Headers", exposedHeaders)
			next.ServeHTTP(w, r)
			return
		}
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		if maxAge != "" {
			h.Set("Access-Control-Max-Age", maxAge)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// originMatcher reports whether an origin is allowed and whether it matched a bare "*".
func originMatcher(patterns []string) func(string) (bool, bool) {
	exact := map[string]bool{}
	var suffixes []string
	wildcard := len(patterns) == 0
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
		case p == "*":
			wildcard = true
		case strings.Contains(p, "://*."):
			scheme, host, _ := strings.Cut(p, "://*")
			suffixes = append(suffixes, scheme+"://|"+host)
		default:
			exact[p] = true
		}
	}
	return func(origin string) (bool, bool) {
		if wildcard {
			return true, true
		}
		o := strings.ToLower(origin)
		if exact[o] {
			return true, false
		}
		for _, s := range suffixes {
			scheme, host, _ := strings.Cut(s, "|")
			if rest, ok := strings.CutPrefix(o, scheme); ok && strings.HasSuffix(rest, host) && len(rest) > len(host) {
				return true, false
			}
		}
		return false, false
	}
}
