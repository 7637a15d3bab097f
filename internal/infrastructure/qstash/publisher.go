package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/matrimony-api/internal/application/job"
	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/pkg/id"
)

// Publisher schedules delayed jobs through the QStash publish API. QStash
// holds the message for the requested delay and then POSTs it to the
// service's internal job route, forwarding the secret and nonce headers.
type Publisher struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	callbackURL string
	secret      string
}

func NewPublisher(baseURL, token, callbackURL, secret string) *Publisher {
	return &Publisher{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		callbackURL: strings.TrimRight(callbackURL, "/"),
		secret:      secret,
	}
}

func (p *Publisher) Schedule(ctx context.Context, target string, payload interface{}, delay time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}
	url := p.baseURL + "/v2/publish/" + p.callbackURL + job.Path(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	nonce := id.NewCorrelation()
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Upstash-Delay", job.FormatDelay(delay))
	req.Header.Set("Upstash-Forward-"+job.HeaderSecret, p.secret)
	req.Header.Set("Upstash-Forward-"+job.HeaderNonce, nonce)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qstash publish: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qstash publish failed (%d %s): %w", resp.StatusCode, strings.TrimSpace(string(msg)), domain.ErrUpstream)
	}
	slog.Info("job scheduled", "target", target, "delay", job.FormatDelay(delay), "nonce", nonce)
	return nil
}
