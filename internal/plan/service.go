// Package plan resolves an account's subscription tier to its course quota.
package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/account"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/plan/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/plan/repo"
)

var ErrQuotaExceeded = errors.New("course limit reached for your plan, upgrade to add more courses")

// TierSource returns the subscription tier of an account.
type TierSource interface {
	Tier(ctx context.Context, accountID string) (string, error)
}

// Service checks quotas against the plans table.
type Service struct {
	repo  *repo.Repo
	tiers TierSource
}

func NewService(r *repo.Repo, tiers TierSource) *Service {
	return &Service{repo: r, tiers: tiers}
}

// List returns every plan.
func (s *Service) List(ctx context.Context) ([]entity.Plan, error) {
	return s.repo.List(ctx)
}

// For returns the plan of an account. Unknown tiers, and identities whose
// profile row was never written, fall back to the free plan.
func (s *Service) For(ctx context.Context, accountID string) (*entity.Plan, error) {
	tier, err := s.tiers.Tier(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		tier, err = string(entity.TierFree), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tier: %w", err)
	}
	p, err := s.repo.Get(ctx, entity.Tier(tier))
	if errors.Is(err, sql.ErrNoRows) && entity.Tier(tier) != entity.TierFree {
		p, err = s.repo.Get(ctx, entity.TierFree)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup plan %q: %w", tier, err)
	}
	return p, nil
}

// AllowCourse returns ErrQuotaExceeded when an owner that already has
// existing courses may not create another.
func (s *Service) AllowCourse(ctx context.Context, ownerID string, existing int) error {
	p, err := s.For(ctx, ownerID)
	if err != nil {
		return err
	}
	if !p.Unlimited() && existing >= p.MaxCourses {
		return ErrQuotaExceeded
	}
	return nil
}
