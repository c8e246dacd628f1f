package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"
)

// statusRecorder wraps http.ResponseWriter to capture the status code and,
// when body is set, the response body
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
	body       *bytes.Buffer
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	if !rw.written {
		rw.statusCode = statusCode
		rw.written = true
		rw.ResponseWriter.WriteHeader(statusCode)
	}
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.body != nil {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var secretFields = regexp.MustCompile(`("(?:otp|code|password|token)"\s*:\s*)"[^"]*"`)

// redact masks credentials in a logged JSON body
func redact(body []byte) string {
	return secretFields.ReplaceAllString(string(body), `$1"***"`)
}

// LoggingMiddleware logs all HTTP requests with level-based detail
//
// Log levels:
// - INFO: every request with remote IP, user agent, method and path
// - DEBUG: additionally request and response bodies (credentials masked) and query parameters
// - WARN: failed requests (4xx)
// - ERROR: server errors (5xx)
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		debug := slog.Default().Enabled(r.Context(), slog.LevelDebug)

		wrapped := newStatusRecorder(w)
		base := []any{
			"remote_ip", getIP(r),
			"user_agent", r.UserAgent(),
			"method", r.Method,
			"path", r.URL.Path,
		}

		if debug {
			var requestBody []byte
			if r.Body != nil {
				requestBody, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(requestBody))
			}
			wrapped.body = &bytes.Buffer{}

			attrs := append([]any{}, base...)
			if len(r.URL.Query()) > 0 {
				attrs = append(attrs, "query_params", map[string][]string(r.URL.Query()))
			}
			if len(requestBody) > 0 {
				attrs = append(attrs, "request_body", redact(requestBody))
			}
			slog.Debug("Incoming request", attrs...)
		} else {
			slog.Info("Incoming request", base...)
		}

		next.ServeHTTP(wrapped, r)

		level := slog.LevelInfo
		message := "Request completed"
		switch {
		case wrapped.statusCode >= 500:
			level = slog.LevelError
			message = "Request failed with error"
		case wrapped.statusCode >= 400:
			level = slog.LevelWarn
			message = "Request failed"
		}

		attrs := append(base, "status", wrapped.statusCode, "duration_ms", time.Since(start).Milliseconds())
		if email, ok := GetUserEmail(r); ok {
			attrs = append(attrs, "user_email", email)
		}
		if debug && wrapped.body.Len() > 0 {
			attrs = append(attrs, "response_body", redact(wrapped.body.Bytes()))
		}
		slog.Log(r.Context(), level, message, attrs...)
	})
}
