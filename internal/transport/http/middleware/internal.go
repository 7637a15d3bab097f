package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/matrimony-api/internal/application/job"
)

// nonceTTL covers the queue's whole retry window.
const nonceTTL = 24 * time.Hour

type nonceStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// InternalJob guards delayed-job callbacks. The shared secret must match and
// each nonce is accepted once; a replayed nonce is answered 200 so the queue
// stops retrying. When the handler fails the nonce is released so the
// queue's retry is processed.
func InternalJob(secret string, nonces nonceStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(job.HeaderSecret)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			nonce := r.Header.Get(job.HeaderNonce)
			if nonce == "" {
				writeJSONError(w, http.StatusBadRequest, "missing job nonce")
				return
			}
			key := "job_nonce:" + nonce
			fresh, err := nonces.SetNX(r.Context(), key, "1", nonceTTL)
			if err != nil {
				slog.Error("job nonce check failed", "err", err)
				writeJSONError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !fresh {
				slog.Info("duplicate job delivery", "path", r.URL.Path, "nonce", nonce)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"status":"duplicate"}` + "\n"))
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusInternalServerError {
				if err := nonces.Del(context.WithoutCancel(r.Context()), key); err != nil {
					slog.Warn("release job nonce", "nonce", nonce, "err", err)
				}
			}
		})
	}
}
