package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/transport/http/middleware"
)

const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 32 << 20
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusEnvelope acknowledges webhook and job deliveries.
type StatusEnvelope struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrStaleWrite),
		errors.Is(err, domain.ErrAlreadyCompleted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientCredit):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// httpError writes err with its mapped status. Unmapped errors are logged and
// answered with a generic message.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, status, "internal server error")
		return
	}
	if status == http.StatusBadGateway {
		slog.Warn("upstream failure", "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads a bounded JSON body into dst. It writes the 400 itself
// and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// callerID returns the authenticated subject or writes a 401.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.UserID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return claims.UserID, true
}

// readUploads parses a multipart form and opens every file under field.
// The returned close func releases the opened files.
func readUploads(r *http.Request, field string) ([]domain.FileUpload, func(), error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, func() {}, fmt.Errorf("invalid multipart form: %w", domain.ErrBadRequest)
	}
	headers := r.MultipartForm.File[field]
	opened := make([]multipart.File, 0, len(headers))
	release := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	uploads := make([]domain.FileUpload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			release()
			return nil, func() {}, fmt.Errorf("open %s: %w", h.Filename, err)
		}
		opened = append(opened, f)
		uploads = append(uploads, domain.FileUpload{Name: h.Filename, Body: f})
	}
	return uploads, release, nil
}
