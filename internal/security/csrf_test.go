package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func csrfHandler() http.Handler {
	return CSRF{AllowedOrigins: []string{"https://shop.example"}}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRFAllowsSafeMethods(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://api.example/api/v1/cart", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	csrfHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected GET to pass, got %d", rr.Code)
	}
}

func TestCSRFOriginChecks(t *testing.T) {
	cases := []struct {
		name   string
		origin string
		site   string
		want   int
	}{
		{name: "allowed origin", origin: "https://shop.example", want: http.StatusOK},
		{name: "allowed origin case", origin: "HTTPS://Shop.Example", want: http.StatusOK},
		{name: "same host", origin: "http://api.example", want: http.StatusOK},
		{name: "foreign origin", origin: "https://evil.example", want: http.StatusForbidden},
		{name: "cross-site fetch without origin", site: "cross-site", want: http.StatusForbidden},
		{name: "same-origin fetch", site: "same-origin", want: http.StatusOK},
		{name: "non-browser client", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "http://api.example/api/v1/cart/items", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.site != "" {
				req.Header.Set("Sec-Fetch-Site", tc.site)
			}
			rr := httptest.NewRecorder()
			csrfHandler().ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}
