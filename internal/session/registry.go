package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/notify"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/utilities"
)

// CookieName carries the client id that selects a Client in the Registry.
const CookieName = "mb_client"

// DefaultIdleTTL is how long an untouched client is kept.
const DefaultIdleTTL = 2 * time.Hour

// Client is the application state owned by one browser: its session store,
// its notification slot and the last navigation target.
type Client struct {
	ID      string
	Store   *Store
	Notices *notify.Broadcaster

	mu       sync.Mutex
	redirect string
	lastSeen time.Time
}

// Navigate records the navigation target for the next response.
func (c *Client) Navigate(path string) {
	c.mu.Lock()
	c.redirect = path
	c.mu.Unlock()
}

// TakeRedirect returns and clears the pending navigation target.
func (c *Client) TakeRedirect() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.redirect
	c.redirect = ""
	return p
}

// Registry owns the per-client state.
type Registry struct {
	idp      IdentityProvider
	profiles ProfileStore
	clock    clockwork.Clock
	logger   *zap.SugaredLogger
	IdleTTL  time.Duration

	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry(idp IdentityProvider, profiles ProfileStore, clock clockwork.Clock, logger *zap.SugaredLogger) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		idp:      idp,
		profiles: profiles,
		clock:    clock,
		logger:   logger,
		IdleTTL:  DefaultIdleTTL,
		clients:  map[string]*Client{},
	}
}

// Get returns the client for id, creating it when unknown.
func (r *Registry) Get(id string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		c = r.newClient(id)
		r.clients[id] = c
	}
	c.mu.Lock()
	c.lastSeen = r.clock.Now()
	c.mu.Unlock()
	return c
}

// must be called with r.mu held
func (r *Registry) newClient(id string) *Client {
	c := &Client{ID: id, Notices: notify.New(r.clock)}
	c.Store = NewStore(r.idp, r.profiles, c.Notices, c, r.logger)
	c.Store.Subscribe(func(ident *Identity) {
		if ident == nil {
			r.logger.Debugw("session signed out", "client", id)
			return
		}
		r.logger.Debugw("session changed", "client", id, "identity", ident.ID)
	})
	return c
}

// ClientFor resolves the client of a request, issuing the cookie for new
// clients.
func (r *Registry) ClientFor(w http.ResponseWriter, req *http.Request) *Client {
	if ck, err := req.Cookie(CookieName); err == nil && ck.Value != "" {
		return r.Get(ck.Value)
	}
	id := utilities.NewKSUID()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   req.TLS != nil,
	})
	return r.Get(id)
}

// Notifier returns the notification slot of the request's client. Requests
// without the client cookie get a detached slot and register nothing.
func (r *Registry) Notifier(w http.ResponseWriter, req *http.Request) *notify.Broadcaster {
	ck, err := req.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return notify.New(r.clock)
	}
	return r.Get(ck.Value).Notices
}

// Sweep drops clients idle for longer than IdleTTL and returns how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.IdleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, c := range r.clients {
		c.mu.Lock()
		idle := c.lastSeen.Before(cutoff)
		c.mu.Unlock()
		if idle {
			delete(r.clients, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
