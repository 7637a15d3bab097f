package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/matrimony-api/internal/application/job"
	"github.com/matrimony-api/internal/pkg/id"
)

// LocalScheduler delivers delayed jobs from an in-process timer. It is used
// when no QStash token is configured (local development, tests). Pending
// timers are lost on restart.
type LocalScheduler struct {
	httpClient  *http.Client
	callbackURL string
	secret      string

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewLocalScheduler(callbackURL, secret string) *LocalScheduler {
	return &LocalScheduler{
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		callbackURL: strings.TrimRight(callbackURL, "/"),
		secret:      secret,
		timers:      make(map[string]*time.Timer),
	}
}

func (s *LocalScheduler) Schedule(_ context.Context, target string, payload interface{}, delay time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}
	nonce := id.NewCorrelation()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("scheduler closed")
	}
	s.timers[nonce] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, nonce)
		s.mu.Unlock()
		s.deliver(target, nonce, body)
	})
	slog.Info("job scheduled locally", "target", target, "delay", job.FormatDelay(delay), "nonce", nonce)
	return nil
}

func (s *LocalScheduler) deliver(target, nonce string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.callbackURL+job.Path(target), bytes.NewReader(body))
	if err != nil {
		slog.Error("build job request", "target", target, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(job.HeaderSecret, s.secret)
	req.Header.Set(job.HeaderNonce, nonce)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("deliver job", "target", target, "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		slog.Warn("job handler failed", "target", target, "status", resp.StatusCode)
	}
}

// Pending returns the number of jobs waiting for their timer.
func (s *LocalScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops all pending timers. Jobs not yet delivered are dropped.
func (s *LocalScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for k, t := range s.timers {
		t.Stop()
		delete(s.timers, k)
	}
}
