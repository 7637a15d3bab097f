package profile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/matrimony-api/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldFullName           = "full_name"
	fieldAlternateMob       = "alternate_mob"
	fieldGender             = "gender"
	fieldDob                = "dob"
	fieldAge                = "age"
	fieldProfile            = "profile"
	fieldImages             = "images"
	fieldIsHidden           = "is_hidden"
	fieldHasCompleteProfile = "has_complete_profile"
)

// Pagination bounds for Discover.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// imageFolder is the object-store prefix for profile photos.
const imageFolder = "profiles"

type Service interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error)
	Discover(ctx context.Context, userID string, filter domain.DiscoverFilter, page, limit int) (*domain.DiscoverPage, error)
	Hide(ctx context.Context, userID, targetID string) error
	AccountStatus(ctx context.Context, userID string) (*AccountStatus, error)
	Delete(ctx context.Context, userID string) error
	UploadImages(ctx context.Context, userID string, files []domain.FileUpload) ([]domain.Image, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	Delete(ctx context.Context, userID string) error
	ListVisible(ctx context.Context) ([]domain.User, error)
	HideProfile(ctx context.Context, userID, targetID string) error
}

type imageStore interface {
	PutImage(ctx context.Context, folder, owner, filename string, r io.Reader) (domain.Image, error)
	Delete(ctx context.Context, key string) error
}

type mailer interface {
	SendTemplate(ctx context.Context, to, templateID string, vars map[string]string) error
}

type AccountStatus struct {
	IsHidden bool `json:"is_hidden"`
}

type service struct {
	repo   userStore
	images imageStore
	mailer mailer
	now    func() time.Time
}

type ServiceDeps struct {
	UserRepo   userStore
	ImageStore imageStore
	Mailer     mailer
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:   deps.UserRepo,
		images: deps.ImageStore,
		mailer: deps.Mailer,
		now:    time.Now,
	}
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) Update(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error) {
	updates := map[string]interface{}{fieldHasCompleteProfile: true}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, fmt.Errorf("full_name must not be empty: %w", domain.ErrBadRequest)
		}
		updates[fieldFullName] = name
	}
	if req.AlternateMob != nil {
		updates[fieldAlternateMob] = *req.AlternateMob
	}
	if req.Gender != nil {
		g := strings.ToLower(*req.Gender)
		if g != "male" && g != "female" {
			return nil, fmt.Errorf("gender must be male or female: %w", domain.ErrBadRequest)
		}
		updates[fieldGender] = g
	}
	if req.Dob != nil {
		dob, err := time.Parse("2006-01-02", *req.Dob)
		if err != nil {
			return nil, fmt.Errorf("dob must be in YYYY-MM-DD format: %w", domain.ErrBadRequest)
		}
		updates[fieldDob] = dob
		updates[fieldAge] = domain.AgeAt(dob, s.now())
	}
	if req.Profile != nil {
		updates[fieldProfile] = *req.Profile
	}
	// An empty image list keeps the current photos.
	if len(req.Images) > 0 {
		updates[fieldImages] = req.Images
	}
	if err := s.repo.Update(ctx, userID, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID)
}

// Discover lists visible profiles of the opposite gender the caller has not
// interacted with or hidden, newest first.
func (s *service) Discover(ctx context.Context, userID string, filter domain.DiscoverFilter, page, limit int) (*domain.DiscoverPage, error) {
	me, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if me.Gender == "" {
		return nil, fmt.Errorf("current user gender not set: %w", domain.ErrBadRequest)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	candidates, err := s.repo.ListVisible(ctx)
	if err != nil {
		return nil, err
	}
	excluded := domain.NewIDSet(
		me.Interests.Sent, me.Interests.Received,
		me.Interests.Accepted, me.Interests.Declined,
		me.HideProfiles, []string{me.UserID},
	)
	want := oppositeGender(me.Gender)

	var matched []domain.User
	for i := range candidates {
		u := &candidates[i]
		if u.IsHidden || excluded.Has(u.UserID) || !strings.EqualFold(u.Gender, want) {
			continue
		}
		if matches(u, filter) {
			matched = append(matched, *u)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	result := &domain.DiscoverPage{
		Profiles:      []domain.ProfileCard{},
		TotalProfiles: len(matched),
		TotalPages:    (len(matched) + limit - 1) / limit,
		Page:          page,
		Limit:         limit,
	}
	start := (page - 1) * limit
	for i := start; i < len(matched) && i < start+limit; i++ {
		result.Profiles = append(result.Profiles, matched[i].Card())
	}
	return result, nil
}

// Hide hides the caller's own profile when targetID is empty, otherwise adds
// targetID to the caller's hidden list.
func (s *service) Hide(ctx context.Context, userID, targetID string) error {
	if targetID == userID {
		return fmt.Errorf("cannot hide yourself from yourself: %w", domain.ErrBadRequest)
	}
	if targetID != "" {
		return s.repo.HideProfile(ctx, userID, targetID)
	}
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, userID, map[string]interface{}{fieldIsHidden: true}); err != nil {
		return err
	}
	if err := s.mailer.SendTemplate(ctx, u.Email, domain.TemplateAccountHidden,
		map[string]string{"user_name": u.FullName}); err != nil {
		slog.Warn("account hidden email failed", "user_id", userID, "err", err)
	}
	return nil
}

func (s *service) AccountStatus(ctx context.Context, userID string) (*AccountStatus, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AccountStatus{IsHidden: u.IsHidden}, nil
}

// Delete removes the account and its stored photos. Photo and email failures
// are logged, the account is gone either way.
func (s *service) Delete(ctx context.Context, userID string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	for _, img := range u.Images {
		if img.FileID == "" {
			continue
		}
		if err := s.images.Delete(ctx, img.FileID); err != nil {
			slog.Warn("delete profile image", "user_id", userID, "file_id", img.FileID, "err", err)
		}
	}
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.mailer.SendTemplate(ctx, u.Email, domain.TemplateAccountDeletion,
		map[string]string{"user_name": u.FullName}); err != nil {
		slog.Warn("account deletion email failed", "user_id", userID, "err", err)
	}
	slog.Info("account deleted", "user_id", userID)
	return nil
}

// UploadImages stores the files concurrently and returns their references in
// input order. The caller attaches them to the profile through Update.
func (s *service) UploadImages(ctx context.Context, userID string, files []domain.FileUpload) ([]domain.Image, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no images provided: %w", domain.ErrBadRequest)
	}
	out := make([]domain.Image, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			img, err := s.images.PutImage(gctx, imageFolder, userID, f.Name, f.Body)
			if err != nil {
				return fmt.Errorf("upload %s: %w", f.Name, err)
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func oppositeGender(g string) string {
	if strings.EqualFold(g, "male") {
		return "female"
	}
	return "male"
}

func matches(u *domain.User, f domain.DiscoverFilter) bool {
	if f.AgeFrom > 0 && u.Age < f.AgeFrom {
		return false
	}
	if f.AgeTo > 0 && u.Age > f.AgeTo {
		return false
	}
	if h := u.Profile.Height; h > 0 {
		if f.HeightFrom > 0 && h < f.HeightFrom {
			return false
		}
		if f.HeightTo > 0 && h > f.HeightTo {
			return false
		}
	}
	return oneOf(f.MaritalStatus, u.Profile.MaritalStatus) &&
		oneOf(f.SubCaste, u.Profile.SubCaste) &&
		oneOf(f.EmployedIn, u.Profile.EmployedIn) &&
		oneOf(f.Qualification, u.Profile.Qualification) &&
		oneOf(f.Country, u.Profile.Country)
}

// oneOf reports whether v is in allowed; an empty allowed list matches all.
func oneOf(allowed []string, v string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), v) {
			return true
		}
	}
	return false
}
