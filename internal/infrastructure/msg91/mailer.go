// Package msg91 sends provider-side templated emails through the MSG91
// email API.
package msg91

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matrimony-api/internal/config"
	"github.com/matrimony-api/internal/domain"
)

type Mailer struct {
	httpClient *http.Client
	apiURL     string
	authKey    string
	domain     string
	from       string
	fromName   string
}

func NewMailer(cfg config.Email) *Mailer {
	return &Mailer{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     cfg.MSG91API,
		authKey:    cfg.MSG91AuthKey,
		domain:     cfg.MSG91Domain,
		from:       cfg.From,
		fromName:   cfg.FromName,
	}
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type recipient struct {
	To        []address         `json:"to"`
	Variables map[string]string `json:"variables,omitempty"`
}

type sendRequest struct {
	Recipients []recipient `json:"recipients"`
	From       address     `json:"from"`
	Domain     string      `json:"domain"`
	TemplateID string      `json:"template_id"`
}

// SendTemplate renders templateID on the provider with vars for one recipient.
func (m *Mailer) SendTemplate(ctx context.Context, to, templateID string, vars map[string]string) error {
	body, err := json.Marshal(sendRequest{
		Recipients: []recipient{{To: []address{{Email: to}}, Variables: vars}},
		From:       address{Email: m.from, Name: m.fromName},
		Domain:     m.domain,
		TemplateID: templateID,
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("authkey", m.authKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("msg91: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("msg91 %s (%d %s): %w", templateID, resp.StatusCode, strings.TrimSpace(string(msg)), domain.ErrUpstream)
	}
	return nil
}
