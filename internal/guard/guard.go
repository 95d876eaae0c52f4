package guard

import (
	"fmt"
	"sync"

	"github.com/2beens/blogportal/internal/session"
)

type Decision int

const (
	DecisionLoading Decision = iota
	DecisionRedirect
	DecisionRender
)

func (d Decision) String() string {
	switch d {
	case DecisionLoading:
		return "loading"
	case DecisionRedirect:
		return "redirect"
	case DecisionRender:
		return "render"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Config parametrizes a guarded zone. The admin zone checks authentication
// only; the backend stays the authority on roles.
type Config struct {
	Zone      session.Zone
	LoginPath string
}

var (
	UserZone = Config{
		Zone:      session.ZoneUser,
		LoginPath: "/login",
	}
	AdminZone = Config{
		Zone:      session.ZoneAdmin,
		LoginPath: "/admin/login",
	}
)

// ForZone returns the guard config of zone.
func ForZone(zone session.Zone) (Config, bool) {
	switch zone {
	case session.ZoneUser:
		return UserZone, true
	case session.ZoneAdmin:
		return AdminZone, true
	default:
		return Config{}, false
	}
}

// Navigator performs a replace-navigation (no new history entry).
type Navigator interface {
	Replace(path string)
}

// Guard evaluates snapshots of one session for one render. It navigates to
// the login path at most once per revision of the session.
type Guard struct {
	cfg Config

	mu           sync.Mutex
	redirected   bool
	redirectedAt uint64
}

func New(cfg Config) *Guard {
	return &Guard{cfg: cfg}
}

func (g *Guard) Config() Config {
	return g.cfg
}

func (g *Guard) Evaluate(snap session.Snapshot, nav Navigator) Decision {
	switch snap.State {
	case session.StateInitializing:
		return DecisionLoading
	case session.StateAuthenticated:
		return DecisionRender
	}

	g.mu.Lock()
	fire := !g.redirected || g.redirectedAt != snap.Revision
	if fire {
		g.redirected = true
		g.redirectedAt = snap.Revision
	}
	g.mu.Unlock()

	if fire && nav != nil {
		nav.Replace(g.cfg.LoginPath)
	}
	return DecisionRedirect
}
