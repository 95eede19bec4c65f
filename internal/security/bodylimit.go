package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/foodsafe/storefront/internal/common"
)

// BodyLimit caps request payloads. Cart and checkout bodies are small JSON
// documents so the buffered copy stays cheap.
type BodyLimit struct {
	Max int64
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	if b.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > b.Max {
			payloadTooLarge(w)
			return
		}
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, b.Max))
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			payloadTooLarge(w)
		case err != nil:
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		default:
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		}
	})
}

func payloadTooLarge(w http.ResponseWriter) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
}
