// Package session binds signed-in users to browser cookies.
//
// A Session owns the user's Dashboard and with it the gateway subscriptions;
// ending a session, by sign-out or by idling past the TTL, closes them.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"budgetly/internal/auth"
	"budgetly/internal/core"
	"budgetly/internal/dashboard"
	"budgetly/internal/gateway"
	"budgetly/internal/log"
)

var ErrNoSession = errors.New("no such session")

type Session struct {
	Token     string
	User      core.User
	Dashboard *dashboard.Dashboard
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

type Options struct {
	// TTL is how long a session may sit idle. Defaults to 24h.
	TTL       time.Duration
	Now       func() time.Time
	Logger    *log.Logger
	Dashboard dashboard.Options
}

type Manager struct {
	gw     gateway.Gateway
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
	dopts  dashboard.Options

	mu       sync.Mutex
	sessions map[string]*Session

	unsubAuth gateway.Unsubscribe
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates a manager and starts listening for sign-outs, which
// end every session of the user.
func NewManager(gw gateway.Gateway, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	if opts.Dashboard.Now == nil {
		opts.Dashboard.Now = opts.Now
	}
	if opts.Dashboard.Logger == nil {
		opts.Dashboard.Logger = opts.Logger
	}

	m := &Manager{
		gw:       gw,
		ttl:      opts.TTL,
		now:      opts.Now,
		logger:   opts.Logger.WithComponent(log.ComponentSession),
		dopts:    opts.Dashboard,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
	m.unsubAuth = gw.OnAuthChange(func(userID string, u *core.User) {
		if u == nil {
			m.EndUser(userID)
		}
	})
	return m
}

// SignIn authenticates with the gateway and starts a session.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := m.gw.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.Start(ctx, *u)
}

// Start makes sure the user has a record, opens the dashboard and issues a
// token.
func (m *Manager) Start(ctx context.Context, u core.User) (*Session, error) {
	stored, err := m.gw.EnsureUserRecord(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("ensure user record: %w", err)
	}
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	dash, err := dashboard.Open(ctx, m.gw, stored, m.dopts)
	if err != nil {
		return nil, fmt.Errorf("open dashboard: %w", err)
	}

	now := m.now()
	s := &Session{Token: token, User: stored, Dashboard: dash, CreatedAt: now, lastSeen: now}

	m.mu.Lock()
	m.sessions[token] = s
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Session started", log.FieldUserID, stored.ID)
	return s, nil
}

// Get returns the live session for token and marks it as seen. Expired
// sessions are ended on the spot.
func (m *Manager) Get(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}
	m.mu.Lock()
	s, ok := m.sessions[token]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	now := m.now()
	if now.Sub(s.LastSeen()) > m.ttl {
		m.drop(token)
		return nil, false
	}
	s.touch(now)
	return s, true
}

// End signs the session's user out. The gateway's sign-out notification
// ends the user's remaining sessions too.
func (m *Manager) End(ctx context.Context, token string) error {
	s := m.drop(token)
	if s == nil {
		return ErrNoSession
	}
	return m.gw.SignOut(ctx, s.User.ID)
}

// EndUser closes every session held by userID.
func (m *Manager) EndUser(userID string) int {
	m.mu.Lock()
	var ended []*Session
	for token, s := range m.sessions {
		if s.User.ID == userID {
			ended = append(ended, s)
			delete(m.sessions, token)
		}
	}
	m.mu.Unlock()

	for _, s := range ended {
		s.Dashboard.Close()
	}
	if len(ended) > 0 {
		m.logger.Info("Sessions ended", log.FieldUserID, userID, "count", len(ended))
	}
	return len(ended)
}

// Reap ends sessions idle for longer than the TTL.
func (m *Manager) Reap() int {
	now := m.now()
	m.mu.Lock()
	var expired []*Session
	for token, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.ttl {
			expired = append(expired, s)
			delete(m.sessions, token)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Dashboard.Close()
	}
	if len(expired) > 0 {
		m.logger.Info("Reaped idle sessions", "count", len(expired))
	}
	return len(expired)
}

// StartReaper runs Reap every interval until Stop.
func (m *Manager) StartReaper(interval time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Reap()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends the reaper and closes every session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()
		m.unsubAuth()

		m.mu.Lock()
		all := make([]*Session, 0, len(m.sessions))
		for _, s := range m.sessions {
			all = append(all, s)
		}
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		for _, s := range all {
			s.Dashboard.Close()
		}
		m.logger.Info("Session manager stopped", "closed", len(all))
	})
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) drop(token string) *Session {
	m.mu.Lock()
	s, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	s.Dashboard.Close()
	return s
}
