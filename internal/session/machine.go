package session

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type State int

const (
	StateInitializing State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Zone selects which backend auth endpoints are used: the end-user portal
// or the site-admin console.
type Zone string

const (
	ZoneUser  Zone = "user"
	ZoneAdmin Zone = "admin"
)

type RegisterRequest struct {
	Zone     Zone
	Email    string
	Username string
	Password string
	// Code is the registration code, required by the admin zone only.
	Code string
}

type Ack struct {
	Message string
}

// Authenticator issues the login and register calls against the backend.
type Authenticator interface {
	Login(ctx context.Context, zone Zone, email, password string) (*Session, error)
	Register(ctx context.Context, req RegisterRequest) (*Ack, error)
}

// Snapshot is an immutable view of the machine at one revision.
type Snapshot struct {
	State    State
	User     *UserProfile
	Revision uint64
}

func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil
}

func (s Snapshot) IsAdmin() bool {
	return s.User != nil && s.User.IsAdmin
}

type MachineOption func(*Machine)

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTransitionHook registers a func called on every transition, while the
// machine is locked. It must not call back into the machine.
func WithTransitionHook(hook func(from, to State)) MachineOption {
	return func(m *Machine) {
		m.onTransition = hook
	}
}

// Machine is the session state machine of a single client. It starts in
// StateInitializing and leaves it exactly once, through Hydrate or an early
// Logout.
type Machine struct {
	clientID     string
	store        Store
	auth         Authenticator
	now          func() time.Time
	onTransition func(from, to State)

	mu       sync.RWMutex
	state    State
	session  *Session
	revision uint64

	hydrateOnce sync.Once
	startOnce   sync.Once
	ready       chan struct{}

	subsMu    sync.Mutex
	subs      map[int]chan Snapshot
	nextSubID int
}

func NewMachine(clientID string, store Store, auth Authenticator, opts ...MachineOption) *Machine {
	m := &Machine{
		clientID: clientID,
		store:    store,
		auth:     auth,
		now:      time.Now,
		state:    StateInitializing,
		ready:    make(chan struct{}),
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) ClientID() string {
	return m.clientID
}

// Ready is closed once hydration resolved the initial state.
func (m *Machine) Ready() <-chan struct{} {
	return m.ready
}

// Hydrate restores the session from the store. Only the first call does any
// work; later calls block until it is done. A store failure resolves to
// anonymous, so hydration always completes.
func (m *Machine) Hydrate(ctx context.Context) {
	m.hydrateOnce.Do(func() {
		defer close(m.ready)

		stored, err := m.store.Load(ctx, m.clientID)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				log.Errorf("session [%s] hydrate, load: %s", m.clientID, err)
			}
			m.resolve(StateAnonymous, nil)
			return
		}

		if err := stored.Valid(m.now()); err != nil {
			log.Debugf("session [%s] hydrate, stored session dropped: %s", m.clientID, err)
			if err := m.store.Clear(ctx, m.clientID); err != nil {
				log.Errorf("session [%s] hydrate, clear stale: %s", m.clientID, err)
			}
			m.resolve(StateAnonymous, nil)
			return
		}

		m.resolve(StateAuthenticated, stored)
	})
}

// StartHydration runs Hydrate in the background, once, and returns Ready.
func (m *Machine) StartHydration(ctx context.Context) <-chan struct{} {
	m.startOnce.Do(func() {
		go m.Hydrate(ctx)
	})
	return m.ready
}

func (m *Machine) resolve(to State, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// an early logout already resolved the machine
	if m.state != StateInitializing {
		return
	}
	m.transitionLocked(to, s)
}

// Login authenticates against the zone's backend endpoint. On failure the
// state is left untouched and the error is returned as is.
func (m *Machine) Login(ctx context.Context, zone Zone, email, password string) (*Session, error) {
	if m.State() == StateInitializing {
		return nil, ErrInitializing
	}

	s, err := m.auth.Login(ctx, zone, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	stored := s.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, m.clientID, stored); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	m.transitionLocked(StateAuthenticated, stored)

	return stored.Clone(), nil
}

// Logout always ends anonymous, even when clearing the store fails; the
// store error is still returned. A logout during hydration wins over the
// hydration result.
func (m *Machine) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clearErr := m.store.Clear(ctx, m.clientID)
	if m.state != StateAnonymous {
		m.transitionLocked(StateAnonymous, nil)
	}

	if clearErr != nil {
		return fmt.Errorf("clear session store: %w", clearErr)
	}
	return nil
}

// Register never changes the session; callers log in explicitly afterwards.
func (m *Machine) Register(ctx context.Context, req RegisterRequest) (*Ack, error) {
	return m.auth.Register(ctx, req)
}

func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Token returns the bearer token of the current session, or "".
func (m *Machine) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.Token
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Subscribe returns a channel receiving the latest snapshot after every
// transition, starting with the current one. Slow readers only ever miss
// intermediate snapshots, never the latest.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch := make(chan Snapshot, 1)
	ch <- m.snapshotLocked()

	m.subsMu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = ch
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
		})
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:    m.state,
		Revision: m.revision,
	}
	if m.session != nil {
		snap.User = m.session.User.Clone()
	}
	return snap
}

// transitionLocked must be called with mu held. Subscribers are notified
// before the lock is released, so no caller can observe the new state
// before every subscriber was handed it.
func (m *Machine) transitionLocked(to State, s *Session) {
	from := m.state
	m.state = to
	m.session = s
	m.revision++

	snap := m.snapshotLocked()

	m.subsMu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			// drop the stale snapshot, keep the latest
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	m.subsMu.Unlock()

	if m.onTransition != nil {
		m.onTransition(from, to)
	}
}
