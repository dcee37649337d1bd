package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/libraryauth/internal/logging"
	"github.com/oklog/ulid/v2"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

type requestIDKey struct{}

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-Id"

// Logging tags each request with an id and logs method, path, status and
// duration once the handler returns. The id is also attached to the
// context as a logging field, so every line logged while serving the
// request carries it. Query strings are not logged since
// they may carry return URLs or other user input.
func Logging(logger logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set(RequestIDHeader, reqID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		r = r.WithContext(logging.WithFields(ctx, "request_id", reqID))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

// newRequestID returns a ULID, so ids sort by arrival time in the logs.
func newRequestID() string {
	return ulid.Make().String()
}

// RequestID returns the id assigned by Logging, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
