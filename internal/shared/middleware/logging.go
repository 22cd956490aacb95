package middleware

import (
	"context"
	"log"
	"net/http"
	"time"
)

type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) Status() int {
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// requestInfo is filled in by inner handlers (Auth) so the outer access log
// and span can report who made the request and which route served it.
type requestInfo struct {
	householdID string
	route       string
}

type requestInfoKey struct{}

// withRequestInfo attaches a requestInfo to r, reusing one an outer middleware already attached.
func withRequestInfo(r *http.Request) (*http.Request, *requestInfo) {
	if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
		return r, info
	}
	info := &requestInfo{}
	return r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)), info
}

func recordRequest(r *http.Request, householdID string) {
	info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo)
	if !ok {
		return
	}
	info.householdID = householdID
	info.route = r.Pattern
}

func (info *requestInfo) routeOr(path string) string {
	if info.route != "" {
		return info.route
	}
	return path
}

// Logging writes one access log line per request, tagged with the household when authenticated.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		r, info := withRequestInfo(r)
		wrapped := wrapResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		status := wrapped.status
		if status == 0 {
			status = http.StatusOK
		}

		household := info.householdID
		if household == "" {
			household = "-"
		}

		log.Printf(
			"%s %s %d %dB %s household=%s",
			r.Method,
			r.URL.Path,
			status,
			wrapped.bytes,
			time.Since(start),
			household,
		)
	})
}
