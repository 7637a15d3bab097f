// Package astrology runs paid astrology readings: a submission records a
// pending entry and schedules a delayed job, and the job drives
// geocode, timezone, ephemeris and insight generation before marking the
// entry completed exactly once.
package astrology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matrimony-api/internal/application/job"
	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/infrastructure/geo"
	"github.com/matrimony-api/internal/pkg/id"
	"github.com/matrimony-api/internal/pkg/validate"
)

const maxAttempts = 3

type Service interface {
	Submit(ctx context.Context, userID string, req SubmitRequest) (*domain.AstrologyEntry, error)
	List(ctx context.Context, userID string) ([]domain.AstrologyEntry, error)
	Process(ctx context.Context, j domain.AstrologyJob) error
	PreparePending(ctx context.Context, email string, payload json.RawMessage) (json.RawMessage, error)
	CompletePending(ctx context.Context, op domain.PendingOperation) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	AddAstrology(ctx context.Context, userID string, entry domain.AstrologyEntry, txn domain.Transaction) error
	CompleteAstrology(ctx context.Context, userID string, index int, uid, response string, at time.Time) error
}

type locator interface {
	Geocode(ctx context.Context, place string) (*geo.Location, error)
	Zone(ctx context.Context, loc geo.Location) (string, error)
}

type ephemeris interface {
	Planets(ctx context.Context, birth domain.BirthData) (json.RawMessage, error)
}

type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type pendingCache interface {
	Del(ctx context.Context, key string) error
}

type mailer interface {
	SendTemplate(ctx context.Context, to, templateID string, vars map[string]string) error
}

// SubmitRequest is a paid reading request. Partner fields are required for
// Kundli Matching.
type SubmitRequest struct {
	Name             string  `json:"name" validate:"required"`
	Dob              string  `json:"dob" validate:"required"`
	Place            string  `json:"place" validate:"required"`
	Gender           string  `json:"gender" validate:"required"`
	PartnerName      string  `json:"partner_name"`
	PartnerDob       string  `json:"partner_dob"`
	PartnerPlace     string  `json:"partner_place"`
	PartnerGender    string  `json:"partner_gender"`
	ConsultationMode string  `json:"consultation_mode" validate:"required,consultation_mode"`
	Query            string  `json:"query"`
	OrderID          string  `json:"order_id"`
	PaymentID        string  `json:"payment_id"`
	Amount           float64 `json:"amount"`
}

type service struct {
	store      userStore
	locator    locator
	ephemeris  ephemeris
	generator  generator
	pending    pendingCache
	dispatcher job.Dispatcher
	mailer     mailer
	zone       *time.Location
	override   time.Duration
	now        func() time.Time
	intn       func(int) int
}

type ServiceDeps struct {
	UserRepo      userStore
	Locator       locator
	Ephemeris     ephemeris
	Generator     generator
	Pending       pendingCache
	Dispatcher    job.Dispatcher
	Mailer        mailer
	BusinessZone  *time.Location
	DelayOverride time.Duration
}

func NewService(deps ServiceDeps) Service {
	zone := deps.BusinessZone
	if zone == nil {
		zone = time.UTC
	}
	return &service{
		store:      deps.UserRepo,
		locator:    deps.Locator,
		ephemeris:  deps.Ephemeris,
		generator:  deps.Generator,
		pending:    deps.Pending,
		dispatcher: deps.Dispatcher,
		mailer:     deps.Mailer,
		zone:       zone,
		override:   deps.DelayOverride,
		now:        time.Now,
		intn:       rand.Intn,
	}
}

func (s *service) Submit(ctx context.Context, userID string, req SubmitRequest) (*domain.AstrologyEntry, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.HasTransaction(req.OrderID, req.PaymentID) {
		return nil, fmt.Errorf("astrology order already processed: %w", domain.ErrConflict)
	}

	now := s.now().UTC()
	entry := domain.AstrologyEntry{
		UID:              id.NewCorrelation(),
		Name:             strings.TrimSpace(req.Name),
		Dob:              req.Dob,
		Place:            strings.TrimSpace(req.Place),
		Gender:           req.Gender,
		PartnerName:      req.PartnerName,
		PartnerDob:       req.PartnerDob,
		PartnerPlace:     strings.TrimSpace(req.PartnerPlace),
		PartnerGender:    req.PartnerGender,
		ConsultationMode: req.ConsultationMode,
		Query:            req.Query,
		Status:           domain.AstrologyPending,
		CreatedAt:        now,
	}
	txn := domain.Transaction{
		OrderID:     req.OrderID,
		PaymentID:   req.PaymentID,
		AmountPaid:  req.Amount,
		Note:        "astrology: " + req.ConsultationMode,
		DateOfTrans: now,
	}
	if err := s.store.AddAstrology(ctx, userID, entry, txn); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("astrology order already processed: %w", domain.ErrConflict)
		}
		return nil, err
	}

	key := domain.PendingKey(domain.PurposeAstrology, u.Email)
	if err := s.pending.Del(ctx, key); err != nil {
		slog.Warn("clear pending astrology payment", "key", key, "err", err)
	}

	delay := s.override
	if delay <= 0 {
		delay = NextDelay(s.now(), s.zone, s.intn)
	}
	if err := s.dispatcher.Schedule(ctx, domain.JobAstrology, domain.AstrologyJob{UID: entry.UID, Email: u.Email}, delay); err != nil {
		// The entry stays pending and can be reprocessed by uid.
		slog.Error("schedule astrology job", "uid", entry.UID, "user_id", userID, "err", err)
		return nil, err
	}
	slog.Info("astrology reading queued", "uid", entry.UID, "user_id", userID, "delay", job.FormatDelay(delay))
	return &entry, nil
}

func (s *service) List(ctx context.Context, userID string) ([]domain.AstrologyEntry, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Astrology == nil {
		return []domain.AstrologyEntry{}, nil
	}
	return u.Astrology, nil
}

// Process runs the pipeline for one pending entry. Failures leave the entry
// pending; a completed entry yields domain.ErrAlreadyCompleted untouched.
func (s *service) Process(ctx context.Context, j domain.AstrologyJob) error {
	u, err := s.store.GetByEmail(ctx, j.Email)
	if err != nil {
		return err
	}
	idx := u.FindAstrology(j.UID)
	if idx < 0 {
		return fmt.Errorf("astrology request %s: %w", j.UID, domain.ErrNotFound)
	}
	entry := u.Astrology[idx]
	if entry.Status == domain.AstrologyCompleted {
		return fmt.Errorf("astrology request %s: %w", j.UID, domain.ErrAlreadyCompleted)
	}

	var chart, partnerChart json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chart, err = s.chart(gctx, entry.Dob, entry.Place)
		return err
	})
	if entry.HasPartner() {
		g.Go(func() error {
			var err error
			partnerChart, err = s.chart(gctx, entry.PartnerDob, entry.PartnerPlace)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	text, err := s.generator.Generate(ctx, BuildPrompt(entry, chart, partnerChart))
	if err != nil {
		return upstream("insight generation", err)
	}
	if !json.Valid([]byte(text)) {
		slog.Warn("astrology insight is not valid JSON, storing as is", "uid", j.UID)
	}

	if err := s.complete(ctx, u, idx, j.UID, text); err != nil {
		return err
	}
	slog.Info("astrology reading completed", "uid", j.UID, "user_id", u.UserID)
	if err := s.mailer.SendTemplate(ctx, u.Email, domain.TemplateAstroInsights, map[string]string{
		"username":         u.FullName,
		"consultationMode": entry.ConsultationMode,
	}); err != nil {
		slog.Warn("astrology notification failed", "uid", j.UID, "err", err)
	}
	return nil
}

// complete marks the entry completed, following it if newer submissions
// shifted its index.
func (s *service) complete(ctx context.Context, u *domain.User, idx int, uid, text string) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = s.store.CompleteAstrology(ctx, u.UserID, idx, uid, text, s.now())
		if !errors.Is(err, domain.ErrStaleWrite) {
			return err
		}
		if u, err = s.store.Get(ctx, u.UserID); err != nil {
			return err
		}
		if idx = u.FindAstrology(uid); idx < 0 {
			return fmt.Errorf("astrology request %s: %w", uid, domain.ErrNotFound)
		}
		if u.Astrology[idx].Status == domain.AstrologyCompleted {
			return fmt.Errorf("astrology request %s: %w", uid, domain.ErrAlreadyCompleted)
		}
	}
	return fmt.Errorf("astrology request %s: %w", uid, err)
}

func (s *service) chart(ctx context.Context, dob, place string) (json.RawMessage, error) {
	loc, err := s.locator.Geocode(ctx, place)
	if err != nil {
		return nil, upstream("geocode "+place, err)
	}
	zoneName, err := s.locator.Zone(ctx, *loc)
	if err != nil {
		return nil, upstream("timezone lookup", err)
	}
	zone, err := time.LoadLocation(zoneName)
	if err != nil {
		return nil, fmt.Errorf("unknown zone %q: %w", zoneName, domain.ErrUpstream)
	}
	birth, err := Normalize(dob, zone, *loc)
	if err != nil {
		return nil, err
	}
	out, err := s.ephemeris.Planets(ctx, birth)
	if err != nil {
		return nil, upstream("ephemeris", err)
	}
	return out, nil
}

func checkRequest(req SubmitRequest) error {
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	if !ValidBirthDate(req.Dob) {
		return fmt.Errorf("dob must be YYYY-MM-DD with optional time: %w", domain.ErrBadRequest)
	}
	if req.ConsultationMode == domain.ModeKundliMatching {
		if req.PartnerPlace == "" || !ValidBirthDate(req.PartnerDob) || req.PartnerGender == "" {
			return fmt.Errorf("kundli matching needs partner dob, place and gender: %w", domain.ErrInvalidOperation)
		}
	}
	return nil
}

func upstream(stage string, err error) error {
	if errors.Is(err, domain.ErrUpstream) {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return fmt.Errorf("%s: %w: %v", stage, domain.ErrUpstream, err)
}
