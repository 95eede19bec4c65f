package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/foodsafe/storefront/internal/common"
)

// NewLogger builds the process logger. format "console" (or "text") renders
// human-readable lines; anything else emits JSON. Unknown levels become info.
func NewLogger(service, format, level string) zerolog.Logger {
	return newLogger(os.Stdout, service, format, level)
}

func newLogger(w io.Writer, service, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := w
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(out).With().Timestamp()
	if service = strings.TrimSpace(service); service != "" {
		ctx = ctx.Str("service", service)
	}
	return ctx.Logger()
}

// RequestLogger writes one "http_request" line per API call. 5xx log at error
// level and 4xx at warn.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := wrap(w, r)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := statusOf(ww)

		level := zerolog.InfoLevel
		if status >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		} else if status >= http.StatusBadRequest {
			level = zerolog.WarnLevel
		}
		evt := l.Logger.WithLevel(level).
			Str("method", r.Method).
			Str("route", routeOf(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int("bytes", ww.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context()))
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if sid, ok := common.SessionID(r.Context()); ok && sid != "" {
			evt = evt.Str("session_id", sid)
		}
		if ip := common.ClientIP(r); ip != "" {
			evt = evt.Str("remote_addr", ip)
		}
		if ua := r.UserAgent(); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
