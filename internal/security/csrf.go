package security

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/foodsafe/storefront/internal/common"
)

// CSRF rejects cross-site state-changing requests that ride on the session
// cookie. Browsers announce the origin through Sec-Fetch-Site or Origin;
// requests carrying neither come from non-browser clients and pass.
type CSRF struct {
	AllowedOrigins []string
}

// Middleware enforces the origin check on unsafe methods.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if o := normalizeOrigin(origin); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}
		if !c.permitted(r, allowed) {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "cross-site request rejected", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c CSRF) permitted(r *http.Request, allowed map[string]struct{}) bool {
	origin := normalizeOrigin(r.Header.Get("Origin"))
	if origin != "" {
		if _, ok := allowed[origin]; ok {
			return true
		}
		return origin == requestOrigin(r)
	}
	switch strings.ToLower(strings.TrimSpace(r.Header.Get("Sec-Fetch-Site"))) {
	case "", "same-origin", "none":
		return true
	default:
		return false
	}
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(r.Host)
}

func normalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
