package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// WriteDeadline pushes the connection write deadline d past the start of the
// request, for routes that outlive the server-wide WriteTimeout.
func WriteDeadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := http.NewResponseController(w)
			if err := rc.SetWriteDeadline(time.Now().Add(d)); err != nil && !errors.Is(err, http.ErrNotSupported) {
				slog.Warn("extend write deadline", "path", r.URL.Path, "err", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}
