// Package ephemeris fetches planetary positions for a normalized birth moment.
package ephemeris

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matrimony-api/internal/domain"
)

// Fixed calculation frame for every chart.
const (
	ObservationPoint = "topocentric"
	Ayanamsha        = "lahiri"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type settings struct {
	ObservationPoint string `json:"observation_point"`
	Ayanamsha        string `json:"ayanamsha"`
}

type planetsRequest struct {
	domain.BirthData
	Settings settings `json:"settings"`
}

// Planets returns the raw chart payload, which callers pass through untouched.
func (c *Client) Planets(ctx context.Context, birth domain.BirthData) (json.RawMessage, error) {
	body, err := json.Marshal(planetsRequest{
		BirthData: birth,
		Settings:  settings{ObservationPoint: ObservationPoint, Ayanamsha: Ayanamsha},
	})
	if err != nil {
		return nil, fmt.Errorf("encode birth data: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/planets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ephemeris: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ephemeris response: %w", domain.ErrUpstream)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ephemeris status %d: %w", resp.StatusCode, domain.ErrUpstream)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("ephemeris returned invalid JSON: %w", domain.ErrUpstream)
	}
	return json.RawMessage(raw), nil
}
