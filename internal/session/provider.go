package session

import (
	"context"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/2beens/blogportal/pkg"

	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
)

const (
	clientIDLength = 32
	hydrateTimeout = 5 * time.Second
)

var clientIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{32}$`)

type ctxKey struct{}

// NewContext returns a copy of ctx carrying the client's session machine.
func NewContext(ctx context.Context, m *Machine) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

func FromContext(ctx context.Context) (*Machine, bool) {
	m, ok := ctx.Value(ctxKey{}).(*Machine)
	return m, ok && m != nil
}

type ProviderParams struct {
	Store         Store
	Authenticator Authenticator
	CookieName    string
	CookieSecure  bool
	CookieMaxAge  time.Duration
	// HydrationWait bounds how long a request waits for a fresh machine to
	// hydrate before it is served in the initializing state.
	HydrationWait time.Duration
	// IdleExpiry drops machines of clients not seen for this long.
	IdleExpiry       time.Duration
	MachineOptions   []MachineOption
	OnClientsChanged func(count int)
}

// Provider owns one session machine per client and hands it to handlers via
// the request context.
type Provider struct {
	params      ProviderParams
	mu          sync.Mutex
	machines    *cache.Cache
	newClientID func() (string, error)
}

func NewProvider(params ProviderParams) *Provider {
	if params.IdleExpiry <= 0 {
		params.IdleExpiry = 24 * time.Hour
	}
	p := &Provider{
		params:   params,
		machines: cache.New(params.IdleExpiry, params.IdleExpiry/4),
		newClientID: func() (string, error) {
			return pkg.GenerateRandomString(clientIDLength)
		},
	}
	p.machines.OnEvicted(func(clientID string, _ interface{}) {
		log.Tracef("session machine for client [%s] evicted", clientID)
		p.clientsChanged()
	})
	return p
}

// Machine returns the machine of clientID, creating it when missing.
func (p *Provider) Machine(clientID string) *Machine {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m, found := p.machines.Get(clientID); found {
		// sliding idle expiry
		p.machines.SetDefault(clientID, m)
		return m.(*Machine)
	}

	m := NewMachine(clientID, p.params.Store, p.params.Authenticator, p.params.MachineOptions...)
	p.machines.SetDefault(clientID, m)
	p.clientsChanged()
	return m
}

func (p *Provider) ClientsCount() int {
	return p.machines.ItemCount()
}

func (p *Provider) clientsChanged() {
	if p.params.OnClientsChanged != nil {
		p.params.OnClientsChanged(p.machines.ItemCount())
	}
}

func (p *Provider) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, err := p.clientID(w, r)
			if err != nil {
				log.Errorf("session provider, new client id: %s", err)
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}

			m := p.Machine(clientID)
			p.awaitHydration(r.Context(), m)

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), m)))
		})
	}
}

func (p *Provider) awaitHydration(ctx context.Context, m *Machine) {
	select {
	case <-m.Ready():
		return
	default:
	}

	// hydration outlives the request that started it
	hydrateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hydrateTimeout)
	ready := m.StartHydration(hydrateCtx)
	go func() {
		<-ready
		cancel()
	}()

	if p.params.HydrationWait <= 0 {
		<-ready
		return
	}

	timer := time.NewTimer(p.params.HydrationWait)
	defer timer.Stop()

	select {
	case <-ready:
	case <-timer.C:
		log.Debugf("session [%s] still hydrating after %s", m.ClientID(), p.params.HydrationWait)
	case <-ctx.Done():
	}
}

func (p *Provider) clientID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(p.params.CookieName); err == nil && clientIDRegex.MatchString(c.Value) {
		return c.Value, nil
	}

	clientID, err := p.newClientID()
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     p.params.CookieName,
		Value:    clientID,
		Path:     "/",
		MaxAge:   int(p.params.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   p.params.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	return clientID, nil
}
