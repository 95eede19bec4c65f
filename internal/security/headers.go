// Package security holds HTTP hardening middleware for the storefront API.
package security

import (
	"fmt"
	"net/http"
)

const apiCSP = "default-src 'none'; frame-ancestors 'none'"

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

// apiHeaders are sent on every JSON response. Cart and checkout payloads are
// per-session, so nothing may be cached by intermediaries.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", apiCSP},
	{"Cache-Control", "no-store"},
}

// Headers sets hardening headers on API responses.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dst := w.Header()
		for _, kv := range apiHeaders {
			dst.Set(kv[0], kv[1])
		}
		if h.EnableHSTS && servedOverTLS(r) {
			dst.Set("Strict-Transport-Security", h.hsts())
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hsts() string {
	age := h.HSTSMaxAge
	if age <= 0 {
		age = defaultHSTSMaxAge
	}
	if h.HSTSIncludeSubdomains {
		return fmt.Sprintf("max-age=%d; includeSubDomains", age)
	}
	return fmt.Sprintf("max-age=%d", age)
}

// servedOverTLS also trusts the proxy's X-Forwarded-Proto since TLS usually
// terminates at the load balancer.
func servedOverTLS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
