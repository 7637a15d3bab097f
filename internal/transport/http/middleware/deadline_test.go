package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slowHandler(w http.ResponseWriter, _ *http.Request) {
	time.Sleep(200 * time.Millisecond)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func serveWithWriteTimeout(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(h)
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

func TestWriteDeadline_OutlivesServerWriteTimeout(t *testing.T) {
	srv := serveWithWriteTimeout(t, WriteDeadline(5*time.Second)(http.HandlerFunc(slowHandler)))

	resp, err := srv.Client().Post(srv.URL, "application/json", nil)

	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWriteDeadline_WithoutItResponseIsLost(t *testing.T) {
	srv := serveWithWriteTimeout(t, http.HandlerFunc(slowHandler))

	resp, err := srv.Client().Post(srv.URL, "application/json", nil)
	if err == nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
}

func TestWriteDeadline_RecorderStillServed(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteDeadline(time.Minute)(http.HandlerFunc(okHandler)).
		ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
