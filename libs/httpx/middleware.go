package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

type Middleware func(http.Handler) http.Handler

// Chain wraps h so the first middleware sees the request first. Nil entries
// are skipped, which lets optional middleware be passed inline.
func Chain(h http.Handler, m ...Middleware) http.Handler {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] == nil {
			continue
		}
		h = m[i](h)
	}
	return h
}

// WithBodyLimit caps request bodies at limitBytes. A declared length over
// the cap is refused with 413 before the handler runs; undeclared bodies
// fail on read. A non-positive limit disables the cap.
func WithBodyLimit(limitBytes int64) Middleware {
	if limitBytes <= 0 {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limitBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// WithTimeout bounds each request at d. The request context carries the
// deadline, and a handler still running at d is answered with 503 and the
// usual JSON error body. A non-positive d disables it.
func WithTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return nil
	}
	body, _ := json.Marshal(ErrorBody{Error: "request timed out", Code: "timeout"})
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, string(body))
	}
}
