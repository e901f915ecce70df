// Package session mirrors the authenticated identity of one client and runs
// the login, registration, logout and profile flows against the identity
// provider.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/notify"
)

// Navigation targets applied after a successful operation.
const (
	PathHome      = "/"
	PathDashboard = "/dashboard"
)

var ErrNoUser = errors.New("no user logged in")

// Identity is the authenticated principal issued by the identity provider.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IdentityProvider issues and revokes identities.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, name, email, password string) (*Identity, error)
	SignOut(ctx context.Context, id *Identity) error
}

// ProfileStore persists the profile record that accompanies an identity.
type ProfileStore interface {
	CreateProfile(ctx context.Context, a *entity.Account) error
	UpdateProfile(ctx context.Context, id string, upd entity.ProfileUpdate) (*entity.Account, error)
}

// Notifier surfaces feedback to the user.
type Notifier interface {
	Show(text string, sev notify.Severity)
}

// Navigator applies the post-operation navigation side effect.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Store holds the current identity of one client.
type Store struct {
	idp      IdentityProvider
	profiles ProfileStore
	notifier Notifier
	nav      Navigator
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	current *Identity
	subs    map[int]func(*Identity)
	nextID  int
}

func NewStore(idp IdentityProvider, profiles ProfileStore, notifier Notifier, nav Navigator, logger *zap.SugaredLogger) *Store {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		idp:      idp,
		profiles: profiles,
		notifier: notifier,
		nav:      nav,
		logger:   logger,
		subs:     map[int]func(*Identity){},
	}
}

// Current returns the authenticated identity or nil.
func (s *Store) Current() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsAuthenticated reports whether an identity is present.
func (s *Store) IsAuthenticated() bool {
	return s.Current() != nil
}

// Subscribe registers fn to be called with the new identity (nil on sign-out)
// after every change. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(*Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Restore adopts an identity obtained outside the store, e.g. from a
// previously issued token.
func (s *Store) Restore(id *Identity) {
	s.set(id)
}

// Login signs in and navigates to the dashboard.
func (s *Store) Login(ctx context.Context, email, password string) error {
	id, err := s.idp.SignIn(ctx, email, password)
	if err != nil {
		return s.fail("login", err)
	}
	s.set(id)
	s.nav.Navigate(PathDashboard)
	return nil
}

// Register creates the identity, then the profile row keyed by the new
// identity id. A profile failure leaves the identity signed in.
func (s *Store) Register(ctx context.Context, name, email, password string) error {
	id, err := s.idp.SignUp(ctx, name, email, password)
	if err != nil {
		return s.fail("register", err)
	}
	s.set(id)

	profile := &entity.Account{ID: id.ID, Email: id.Email, Name: name}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		s.logger.Warnw("profile insert failed after sign-up", "identity", id.ID, "err", err)
		return s.fail("register", err)
	}
	s.nav.Navigate(PathDashboard)
	return nil
}

// Logout revokes the session and navigates home.
func (s *Store) Logout(ctx context.Context) error {
	if cur := s.Current(); cur != nil {
		if err := s.idp.SignOut(ctx, cur); err != nil {
			return s.fail("logout", err)
		}
	}
	s.set(nil)
	s.nav.Navigate(PathHome)
	return nil
}

// UpdateProfile changes the profile of the current identity.
func (s *Store) UpdateProfile(ctx context.Context, upd entity.ProfileUpdate) error {
	cur := s.Current()
	if cur == nil {
		return s.fail("update profile", ErrNoUser)
	}
	a, err := s.profiles.UpdateProfile(ctx, cur.ID, upd)
	if err != nil {
		return s.fail("update profile", err)
	}

	next := *cur
	next.Name = a.Name
	next.Email = a.Email
	s.set(&next)
	s.notifier.Show("Profile updated successfully", notify.Success)
	return nil
}

func (s *Store) fail(op string, err error) error {
	s.logger.Debugw("session operation failed", "op", op, "err", err)
	s.notifier.Show(err.Error(), notify.Error)
	return err
}

func (s *Store) set(id *Identity) {
	s.mu.Lock()
	s.current = id
	subs := make([]func(*Identity), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id)
	}
}
