// Package admin holds the moderation flags and the support report relay.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/matrimony-api/internal/domain"
)

const (
	fieldIsCorrupted = "is_corrupted"
	fieldIsVerified  = "is_verified"
)

type Service interface {
	ToggleCorrupted(ctx context.Context, userID string) (*Flags, error)
	Verify(ctx context.Context, userID string) (*Flags, error)
	Report(ctx context.Context, payload json.RawMessage) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type mailer interface {
	SendTemplate(ctx context.Context, to, templateID string, vars map[string]string) error
}

// Flags is the moderation state of a user after a change.
type Flags struct {
	UserID      string `json:"id"`
	IsCorrupted bool   `json:"is_corrupted"`
	IsVerified  bool   `json:"is_verified"`
}

type service struct {
	repo         userStore
	mailer       mailer
	supportEmail string
}

type ServiceDeps struct {
	UserRepo     userStore
	Mailer       mailer
	SupportEmail string
}

func NewService(deps ServiceDeps) Service {
	return &service{repo: deps.UserRepo, mailer: deps.Mailer, supportEmail: deps.SupportEmail}
}

func (s *service) ToggleCorrupted(ctx context.Context, userID string) (*Flags, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	flag := !u.IsCorrupted
	if err := s.repo.Update(ctx, userID, map[string]interface{}{fieldIsCorrupted: flag}); err != nil {
		return nil, err
	}
	slog.Info("corruption flag changed", "user_id", userID, "is_corrupted", flag)
	return &Flags{UserID: userID, IsCorrupted: flag, IsVerified: u.IsVerified}, nil
}

func (s *service) Verify(ctx context.Context, userID string) (*Flags, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsVerified {
		if err := s.repo.Update(ctx, userID, map[string]interface{}{fieldIsVerified: true}); err != nil {
			return nil, err
		}
		slog.Info("user verified", "user_id", userID)
	}
	return &Flags{UserID: userID, IsCorrupted: u.IsCorrupted, IsVerified: true}, nil
}

// Report forwards a client error report to the support inbox.
func (s *service) Report(ctx context.Context, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("report must be JSON: %w", domain.ErrBadRequest)
	}
	if err := s.mailer.SendTemplate(ctx, s.supportEmail, domain.TemplateSupportReport, map[string]string{
		"note":    "My Profile Error",
		"payload": "Error Report " + string(payload),
	}); err != nil {
		return fmt.Errorf("send error report: %w", err)
	}
	return nil
}
