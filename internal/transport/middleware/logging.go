package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/middleware"
)

// maxLoggedBody caps how much of a body is inspected and logged.
const maxLoggedBody = 8 << 10

const filtered = "[FILTERED]"

// redactor masks field and header names containing any of its markers.
type redactor struct {
	markers []string
	exact   map[string]bool
}

var (
	// "code" carries OTP and 2FA codes inbound but error codes outbound.
	requestRedactor = redactor{
		markers: credentialMarkers,
		exact:   map[string]bool{"code": true, "cookie": true},
	}
	responseRedactor = redactor{
		markers: credentialMarkers,
		exact:   map[string]bool{"set-cookie": true},
	}
)

var credentialMarkers = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"key",
	"session",
	"credential",
	"auth",
	"otp",
	"provisioning",
	"backup_code",
}

func (rd redactor) sensitive(name string) bool {
	lower := strings.ToLower(name)
	if rd.exact[lower] {
		return true
	}
	for _, marker := range rd.markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (rd redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if rd.sensitive(name) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// body returns a loggable rendition of raw. Anything that cannot be parsed
// field by field is only logged when it mentions no marker.
func (rd redactor) body(raw []byte, total int) string {
	if total == 0 {
		return ""
	}
	if total > len(raw) {
		return fmt.Sprintf("[TRUNCATED %d bytes]", total)
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		lower := strings.ToLower(string(raw))
		for _, marker := range rd.markers {
			if strings.Contains(lower, marker) {
				return "[FILTERED - Contains sensitive data]"
			}
		}
		return string(raw)
	}

	out, err := json.Marshal(rd.json(doc))
	if err != nil {
		return "[ERROR - Failed to marshal filtered JSON]"
	}
	return string(out)
}

func (rd redactor) json(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for key, value := range t {
			if rd.sensitive(key) {
				out[key] = filtered
				continue
			}
			out[key] = rd.json(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = rd.json(item)
		}
		return out
	default:
		return t
	}
}

// cappedBuffer keeps the first maxLoggedBody bytes and counts the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	total int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.total += len(p)
	if room := maxLoggedBody - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

// LoggingMiddleware logs each request and response with credentials masked.
// RequestID must run before it.
func LoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := w.Header().Get(RequestIDHeader)

			var reqBody cappedBuffer
			if r.Body != nil {
				raw, _ := io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(raw))
				_, _ = reqBody.Write(raw)
			}

			logger.InfoContext(r.Context(), "incoming request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"headers", requestRedactor.headers(r.Header),
				"body", requestRedactor.body(reqBody.buf.Bytes(), reqBody.total),
			)

			var respBody cappedBuffer
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&respBody)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "response",
				"request_id", reqID,
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", ww.BytesWritten(),
				"body", responseRedactor.body(respBody.buf.Bytes(), respBody.total),
			)
		})
	}
}
