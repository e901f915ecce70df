package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/database"
)

var (
	ErrNotFound   = errors.New("profile not found")
	ErrEmailTaken = errors.New("email already in use")
	ErrNoChanges  = errors.New("nothing to update")
)

// Service manages learner profiles.
type Service struct {
	repo     *repo.AccountRepo
	validate *validator.Validate
}

func NewService(db *sqlx.DB) *Service {
	return &Service{repo: repo.NewAccountRepo(db), validate: validator.New()}
}

// CreateProfile inserts the profile row for a newly issued identity.
func (s *Service) CreateProfile(ctx context.Context, a *entity.Account) error {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	if err := s.repo.Create(ctx, a); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// Get returns a profile by id.
func (s *Service) Get(ctx context.Context, id string) (*entity.Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// UpdateProfile applies a partial update to the profile.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd entity.ProfileUpdate) (*entity.Account, error) {
	if upd.Empty() {
		return nil, ErrNoChanges
	}
	if upd.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*upd.Email))
		upd.Email = &e
	}
	if err := s.validate.Struct(upd); err != nil {
		return nil, err
	}
	a, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		case database.IsUniqueViolation(err):
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return a, nil
}

// Tier returns the subscription tier of an account.
func (s *Service) Tier(ctx context.Context, id string) (string, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return a.Subscription, nil
}
