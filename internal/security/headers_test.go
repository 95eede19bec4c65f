package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeaders(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})

	cases := []struct {
		name      string
		headers   Headers
		tls       bool
		proto     string
		wantCSP   string
		wantCache string
		wantHSTS  string
	}{
		{
			name:    "disabled",
			headers: Headers{EnableHSTS: true},
			tls:     true,
		},
		{
			name:      "plain http skips hsts",
			headers:   Headers{Enable: true, EnableHSTS: true},
			wantCSP:   apiCSP,
			wantCache: "no-store",
		},
		{
			name:      "direct tls with default age",
			headers:   Headers{Enable: true, EnableHSTS: true},
			tls:       true,
			wantCSP:   apiCSP,
			wantCache: "no-store",
			wantHSTS:  "max-age=31536000",
		},
		{
			name:      "tls terminated at proxy",
			headers:   Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600, HSTSIncludeSubdomains: true},
			proto:     "https",
			wantCSP:   apiCSP,
			wantCache: "no-store",
			wantHSTS:  "max-age=600; includeSubDomains",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
			if tc.tls {
				req.TLS = &tls.ConnectionState{}
			}
			if tc.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tc.proto)
			}
			rr := httptest.NewRecorder()
			tc.headers.Middleware(ok).ServeHTTP(rr, req)

			if got := rr.Header().Get("Content-Security-Policy"); got != tc.wantCSP {
				t.Fatalf("csp = %q, want %q", got, tc.wantCSP)
			}
			if got := rr.Header().Get("Cache-Control"); got != tc.wantCache {
				t.Fatalf("cache-control = %q, want %q", got, tc.wantCache)
			}
			if got := rr.Header().Get("Strict-Transport-Security"); got != tc.wantHSTS {
				t.Fatalf("hsts = %q, want %q", got, tc.wantHSTS)
			}
		})
	}
}
