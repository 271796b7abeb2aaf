package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// ResponseTime stamps X-Response-Time on every response. The header is set
// just before the status line goes out, so it covers handler time only, not
// body streaming.
func ResponseTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(&timedWriter{ResponseWriter: w, start: start}, r)
	})
}

type timedWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (t *timedWriter) WriteHeader(code int) {
	if !t.wroteHeader {
		t.wroteHeader = true
		ms := time.Since(t.start).Milliseconds()
		t.Header().Set("X-Response-Time", strconv.FormatInt(ms, 10)+"ms")
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *timedWriter) Write(b []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	return t.ResponseWriter.Write(b)
}
