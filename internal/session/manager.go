package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/config"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/driver"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/identity"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/logging"
)

// Job is the unit of work admitted through a session's gate. It runs with
// exclusive access to the session; use EnsureResource for the browser.
type Job func(ctx context.Context, s *Session) error

// WarmFunc performs the keep-alive traffic on an open resource.
type WarmFunc func(ctx context.Context, res driver.Resource) error

// Manager owns the identity->session registry and admits every job through
// the owning session's gate.
type Manager struct {
	cfg    *config.Config
	drv    driver.Driver
	policy Policy
	warmFn WarmFunc
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	jobs sync.WaitGroup // tracks gate-holding jobs for shutdown drain
}

// NewManager creates a session manager. warmFn may be nil, which disables
// warm jobs entirely (cooldown and hit counters are still tracked).
func NewManager(cfg *config.Config, drv driver.Driver, policy Policy, warmFn WarmFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		drv:      drv,
		policy:   policy,
		warmFn:   warmFn,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Driver exposes the resource driver so job bodies can call EnsureResource.
func (m *Manager) Driver() driver.Driver {
	return m.drv
}

// GetOrCreate returns the live session for a raw identity, creating it (and
// its data directories) on first use. Identities normalizing to the same
// safe form share one session.
func (m *Manager) GetOrCreate(rawIdentity string) (*Session, error) {
	safe := identity.ToSafe(rawIdentity)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[safe]; ok && !s.IsClosed() {
		return s, nil
	}
	dirs, err := identity.UserDirs(m.cfg.DataDir, safe)
	if err != nil {
		return nil, err
	}
	s := newSession(safe, dirs.Profile, dirs.Output)
	m.sessions[safe] = s
	m.logger.Debug("session created", "identity", safe)
	return s, nil
}

// Lookup returns the live session for a raw identity without creating one.
func (m *Manager) Lookup(rawIdentity string) (*Session, bool) {
	safe := identity.ToSafe(rawIdentity)
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[safe]
	if !ok || s.IsClosed() {
		return nil, false
	}
	return s, true
}

// RunForUser admits a foreground job: it touches the activity clock on entry
// and exit, counts toward the recycle policy, and counts a hit toward the
// warm trigger. Blocks until the session's gate is free.
func (m *Manager) RunForUser(ctx context.Context, rawIdentity string, job Job) error {
	return m.run(ctx, rawIdentity, job, true)
}

// RunForSystem admits a background job through the same gate but leaves the
// activity clock alone, so internal work never defers idle eviction. It also
// skips the recycle and warm counters.
func (m *Manager) RunForSystem(ctx context.Context, rawIdentity string, job Job) error {
	return m.run(ctx, rawIdentity, job, false)
}

// acquireForRun resolves the session and registers the caller with the
// drain WaitGroup under the registry lock, so Stop either rejects the job
// or waits for it; there is no window in between.
func (m *Manager) acquireForRun(rawIdentity string) (*Session, error) {
	safe := identity.ToSafe(rawIdentity)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	s, ok := m.sessions[safe]
	if !ok || s.IsClosed() {
		dirs, err := identity.UserDirs(m.cfg.DataDir, safe)
		if err != nil {
			return nil, err
		}
		s = newSession(safe, dirs.Profile, dirs.Output)
		m.sessions[safe] = s
		m.logger.Debug("session created", "identity", safe)
	}
	m.jobs.Add(1)
	return s, nil
}

func (m *Manager) run(ctx context.Context, rawIdentity string, job Job, foreground bool) error {
	// The session can be evicted between lookup and gate acquisition; on
	// that window, look it up again. The second pass acquires the gate of a
	// freshly created session that nothing else has seen yet.
	var s *Session
	for {
		var err error
		s, err = m.acquireForRun(rawIdentity)
		if err != nil {
			return err
		}
		s.gate.Lock()
		if !s.IsClosed() {
			break
		}
		s.gate.Unlock()
		m.jobs.Done()
	}

	s.inFlight.Store(true)
	defer func() {
		s.inFlight.Store(false)
		s.gate.Unlock()
		m.jobs.Done()
	}()

	ctx = logging.WithIdentity(ctx, s.IdentitySafe)

	if foreground {
		s.touch()
		count := s.bumpRecycleCount()
		if m.policy.ShouldRecycle(count) {
			m.logger.Info("recycling browser", "identity", s.IdentitySafe, "job_count", count, "policy", m.policy.String())
			if err := s.recycleResource(ctx, m.drv); err != nil {
				return err
			}
		}
	}

	err := job(ctx, s)

	if foreground {
		s.touch()
		if hits := s.bumpWarmHits(); m.cfg.WarmHitsThreshold > 0 && hits >= m.cfg.WarmHitsThreshold {
			s.resetWarmHits()
			m.triggerWarmAsync(s, "hit-count")
		}
	}
	return err
}

// CloseSession tears down one identity's session. A held gate rejects the
// request with ErrSessionBusy unless force is set, in which case the
// resource is closed out from under the running job. Closing an unknown
// identity succeeds.
func (m *Manager) CloseSession(rawIdentity string, force bool) error {
	safe := identity.ToSafe(rawIdentity)

	m.mu.RLock()
	s, ok := m.sessions[safe]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	if force {
		m.logger.Warn("force-closing session", "identity", safe, "in_flight", s.InFlight())
		s.Close()
		m.remove(safe, s)
		return nil
	}

	if !s.gate.TryLock() {
		return ErrSessionBusy
	}
	defer s.gate.Unlock()
	s.Close()
	m.remove(safe, s)
	m.logger.Info("session closed", "identity", safe)
	return nil
}

// remove drops a session from the registry if that exact session is still
// the registered one (a replacement created after eviction is left alone).
func (m *Manager) remove(safe string, s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[safe]; ok && cur == s {
		delete(m.sessions, safe)
	}
	m.mu.Unlock()
}

// List returns a snapshot of all live sessions, sorted by identity.
func (m *Manager) List() []Info {
	now := time.Now()
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.snapshot(now))
	}
	m.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].IdentitySafe < infos[j].IdentitySafe })
	return infos
}

// SessionCount returns the number of registered sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stop drains the manager: new admissions are rejected immediately, jobs
// already holding or waiting on a gate run to completion, then every
// resource is closed. The context bounds the drain; on expiry remaining
// resources are closed out from under their jobs.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("all sessions drained")
	case <-ctx.Done():
		m.logger.Warn("drain timed out, closing sessions with jobs still running")
	}

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
