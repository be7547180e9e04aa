package middleware

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

// RequestRecorder persists request records. *store.Store satisfies it.
type RequestRecorder interface {
	CreateRequest(ctx context.Context, r models.Request) error
}

// RequestTracker stores request metrics in the database
type RequestTracker struct {
	recorder RequestRecorder
	timeout  time.Duration
}

// NewRequestTracker creates a new request tracker middleware
func NewRequestTracker(recorder RequestRecorder) *RequestTracker {
	return &RequestTracker{recorder: recorder, timeout: 5 * time.Second}
}

type userSlotKey struct{}

// userSlot lets Authenticate, which runs further down the chain on a derived
// request, report the caller back to the tracker.
type userSlot struct {
	id atomic.Int64
}

func setTrackedUser(ctx context.Context, userID int64) {
	if slot, ok := ctx.Value(userSlotKey{}).(*userSlot); ok {
		slot.id.Store(userID)
	}
}

// Middleware returns an HTTP middleware that tracks request metrics
func (rt *RequestTracker) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			slot := &userSlot{}
			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), userSlotKey{}, slot)))

			rec := models.Request{
				Method:            r.Method,
				Endpoint:          r.URL.Path,
				StatusCode:        rw.statusCode,
				ResponseTimeMs:    int(time.Since(start).Milliseconds()),
				RequestSizeBytes:  max(int(r.ContentLength), 0),
				ResponseSizeBytes: rw.size,
			}
			if id := slot.id.Load(); id > 0 {
				rec.UserID = &id
			}

			// Recorded asynchronously so the response is never delayed.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), rt.timeout)
				defer cancel()
				if err := rt.recorder.CreateRequest(ctx, rec); err != nil {
					log.Printf("[tracker] failed to record %s %s: %v", rec.Method, rec.Endpoint, err)
				}
			}()
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush keeps streaming responses working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
