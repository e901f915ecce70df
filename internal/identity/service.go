package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/identity/entity"
	identityrepo "github.com/ovaphlow/pitchfork/service-microburst/internal/identity/repo"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/database"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// MinPasswordLength matches the hosted auth default.
const MinPasswordLength = 6

// Service orchestrates sign-up and password authentication.
type Service struct {
	repo   *identityrepo.IdentityRepo
	hasher PasswordHasher
	// configuration knobs
	MaxFailed   int
	LockMinutes int
}

func NewService(db *sqlx.DB, r *identityrepo.IdentityRepo, hasher PasswordHasher) *Service {
	if r == nil {
		r = identityrepo.NewIdentityRepo(db)
	}
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &Service{repo: r, hasher: hasher, MaxFailed: 6, LockMinutes: 15}
}

var (
	ErrLocked         = errors.New("account locked, try again later")
	ErrDisabled       = errors.New("account disabled")
	ErrBadCredentials = errors.New("invalid login credentials")
	ErrEmailTaken     = errors.New("user already registered")
	ErrWeakPassword   = fmt.Errorf("password should be at least %d characters", MinPasswordLength)
	ErrEmailRequired  = errors.New("email is required")
)

// AuthenticatePassword checks email + password. On success resets counters and
// returns the minimal auth view.
func (s *Service) AuthenticatePassword(ctx context.Context, email, password string) (*entity.MinimalAuthView, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrBadCredentials
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, err
	}

	// Expired lock auto-unlock attempt
	if u.Status == "locked" && u.LockedUntil != nil && u.LockedUntil.Before(time.Now()) {
		if unlocked, _ := s.repo.UnlockIfExpired(ctx, u.ID); unlocked {
			u.Status = "active"
			u.LockedUntil = nil
		}
	}

	if u.Status == "locked" {
		return nil, ErrLocked
	}
	if u.Status == "disabled" {
		return nil, ErrDisabled
	}
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}

	if !s.hasher.Verify(*u.PasswordHash, password) {
		if _, incErr := s.repo.IncrementFailedLogin(ctx, u.ID); incErr == nil {
			_, _ = s.repo.LockIfThreshold(ctx, u.ID, s.MaxFailed, s.LockMinutes)
		}
		return nil, ErrBadCredentials
	}

	if err := s.repo.ResetLoginSuccess(ctx, u.ID); err != nil {
		return nil, err
	}
	return &entity.MinimalAuthView{ID: u.ID, Email: u.Email, Name: u.Name, Version: u.Version}, nil
}

// SignUp creates an identity with a freshly issued id and hashed password.
func (s *Service) SignUp(ctx context.Context, name, email, password string) (*entity.MinimalAuthView, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrEmailRequired
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, algo, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u := &entity.Identity{
		ID:           utilities.NewKSUID(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: &hash,
		PasswordAlgo: &algo,
		Status:       "active",
		Version:      1,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &entity.MinimalAuthView{ID: u.ID, Email: u.Email, Name: u.Name, Version: u.Version}, nil
}

// GetMinimalAuthView retrieves the minimal projection for an identity by ID.
func (s *Service) GetMinimalAuthView(ctx context.Context, id string) (*entity.MinimalAuthView, error) {
	return s.repo.GetMinimalAuthView(ctx, id)
}

// BumpVersion invalidates the claims version of outstanding access tokens.
func (s *Service) BumpVersion(ctx context.Context, id string) error {
	return s.repo.BumpVersion(ctx, id)
}
