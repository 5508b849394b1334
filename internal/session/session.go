// Package session implements the per-identity session core: the registry,
// admission/serialization, the recycle policy, the idle janitor and the warm
// job triggers. Every job, foreground or background, runs through one
// session's gate so work on a single identity never interleaves.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/driver"
)

var (
	// ErrManagerClosed is returned when a job is submitted during shutdown.
	ErrManagerClosed = errors.New("session manager is closed")
	// ErrSessionClosed is returned when a job reaches a session that was
	// closed between lookup and gate acquisition.
	ErrSessionClosed = errors.New("session is closed")
	// ErrSessionBusy is returned when a close/delete request targets a
	// session whose gate is currently held. Rejected, not queued.
	ErrSessionBusy = errors.New("session is currently running a job")
)

// Session is the unit of state per identity. Its resource and counters are
// mutated only while the gate is held, or under mu for cheap metadata reads
// from the janitor and listing endpoints.
type Session struct {
	IdentitySafe string
	ProfileDir   string
	OutputDir    string

	gate     sync.Mutex
	inFlight atomic.Bool // observability only: a job currently holds the gate

	// warmRunning is a best-effort guard so the janitor does not stack warm
	// scheduling attempts every tick while one is waiting on the gate. Both
	// warm triggers can pass this check before either acquires the gate; the
	// loser just queues behind the winner and bails on the cooldown re-check,
	// wasting a scheduling attempt but nothing else.
	warmRunning atomic.Bool

	mu           sync.Mutex
	resource     driver.Resource
	lastActive   time.Time
	closed       bool
	recycleCount uint64
	warmHits     int
	warmLastRun  time.Time
	pendingAsync int
}

func newSession(identitySafe, profileDir, outputDir string) *Session {
	return &Session{
		IdentitySafe: identitySafe,
		ProfileDir:   profileDir,
		OutputDir:    outputDir,
		lastActive:   time.Now(),
	}
}

// touch updates the last-activity timestamp.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the last-activity timestamp.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// IsClosed reports whether the session reached its terminal state.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// InFlight reports whether a job currently holds the gate.
func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

// HasResource reports whether a backing browser is currently open.
func (s *Session) HasResource() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resource != nil
}

// Resource returns the currently open browser, or nil. Read-only access
// (status views, screenshots) may use it without holding the gate; anything
// that replaces or closes the resource still needs the gate.
func (s *Session) Resource() driver.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resource
}

// PendingAsync returns the number of async jobs queued or running.
func (s *Session) PendingAsync() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingAsync
}

// EnqueueAsync reserves a queue slot for an async job and returns its
// 1-based position: 1 means nothing was ahead of it at submit time. The
// count-then-increment is atomic, so two concurrent submits never see the
// same position.
func (s *Session) EnqueueAsync() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAsync++
	return s.pendingAsync
}

// DequeueAsync releases a slot reserved by EnqueueAsync.
func (s *Session) DequeueAsync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingAsync > 0 {
		s.pendingAsync--
	}
}

// bumpRecycleCount increments the foreground job counter and returns it.
// Called once per foreground admission regardless of the job's outcome.
func (s *Session) bumpRecycleCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recycleCount++
	return s.recycleCount
}

// bumpWarmHits increments the hit counter, returning the new value.
func (s *Session) bumpWarmHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmHits++
	return s.warmHits
}

func (s *Session) resetWarmHits() {
	s.mu.Lock()
	s.warmHits = 0
	s.mu.Unlock()
}

// warmCooldownRemaining returns how long until the next warm job is allowed.
// Zero means the cooldown has elapsed (or no warm job ever ran).
func (s *Session) warmCooldownRemaining(cooldown time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warmLastRun.IsZero() {
		return 0
	}
	elapsed := time.Since(s.warmLastRun)
	if elapsed >= cooldown {
		return 0
	}
	return cooldown - elapsed
}

// markWarmRun records a completed warm job for cooldown tracking.
func (s *Session) markWarmRun() {
	s.mu.Lock()
	s.warmLastRun = time.Now()
	s.mu.Unlock()
}

// EnsureResource returns the session's resource, opening one lazily if none
// is present or the existing one fails its health check. The caller must
// hold the gate.
func (s *Session) EnsureResource(ctx context.Context, drv driver.Driver) (driver.Resource, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	res := s.resource
	s.mu.Unlock()

	if res != nil {
		if res.Healthy() {
			return res, nil
		}
		_ = res.Close()
		s.setResource(nil)
	}

	opened, err := drv.Open(ctx, s.ProfileDir)
	if err != nil {
		return nil, fmt.Errorf("open resource for %s: %w", s.IdentitySafe, err)
	}
	s.setResource(opened)
	return opened, nil
}

// recycleResource closes and re-opens the backing browser. The caller must
// hold the gate. Sessions without an open resource are left as-is; the next
// EnsureResource opens a fresh one anyway.
func (s *Session) recycleResource(ctx context.Context, drv driver.Driver) error {
	s.mu.Lock()
	res := s.resource
	s.mu.Unlock()
	if res == nil {
		return nil
	}

	_ = res.Close()
	s.setResource(nil)

	opened, err := drv.Open(ctx, s.ProfileDir)
	if err != nil {
		return fmt.Errorf("recycle resource for %s: %w", s.IdentitySafe, err)
	}
	s.setResource(opened)
	return nil
}

func (s *Session) setResource(res driver.Resource) {
	s.mu.Lock()
	s.resource = res
	s.mu.Unlock()
}

// Close releases the resource and marks the session terminal. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	res := s.resource
	s.resource = nil
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()

	if alreadyClosed {
		return
	}
	if res != nil {
		_ = res.Close()
	}
}

// Info is a point-in-time snapshot of a session for listing endpoints.
type Info struct {
	IdentitySafe string        `json:"identity_safe"`
	ProfileDir   string        `json:"profile_dir"`
	Locked       bool          `json:"locked"`
	IdleFor      time.Duration `json:"-"`
	IdleSeconds  float64       `json:"last_used_sec_ago"`
	HasResource  bool          `json:"has_resource"`
	PendingAsync int           `json:"pending_async"`
	Closed       bool          `json:"closed"`
}

func (s *Session) snapshot(now time.Time) Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	idle := now.Sub(s.lastActive)
	return Info{
		IdentitySafe: s.IdentitySafe,
		ProfileDir:   s.ProfileDir,
		Locked:       s.inFlight.Load(),
		IdleFor:      idle,
		IdleSeconds:  idle.Seconds(),
		HasResource:  s.resource != nil,
		PendingAsync: s.pendingAsync,
		Closed:       s.closed,
	}
}
