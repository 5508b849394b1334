package session

import (
	"context"
	"time"
)

// RunJanitor runs the background sweep loop until the context is cancelled.
// Each tick evicts sessions idle past the hard timeout and schedules warm
// jobs for sessions approaching it.
func (m *Manager) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.JanitorInterval)
	defer ticker.Stop()
	m.logger.Info("janitor started",
		"interval", m.cfg.JanitorInterval,
		"idle_timeout", m.cfg.HardIdleTimeout,
		"warm_floor", m.cfg.WarmIdleFloor)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			m.janitorTick(time.Now())
		}
	}
}

// janitorTick performs one sweep against the given clock reading.
func (m *Manager) janitorTick(now time.Time) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return
	}
	snapshot := make(map[string]*Session, len(m.sessions))
	for safe, s := range m.sessions {
		snapshot[safe] = s
	}
	m.mu.RUnlock()

	for safe, s := range snapshot {
		if s.IsClosed() {
			m.remove(safe, s)
			continue
		}
		idle := now.Sub(s.LastActive())
		if idle > m.cfg.HardIdleTimeout {
			m.evictIfIdle(safe, s, now)
			continue
		}
		if idle >= m.cfg.WarmIdleFloor && s.HasResource() && !s.InFlight() && !s.warmRunning.Load() {
			m.triggerWarmAsync(s, "janitor")
		}
	}
}

// evictIfIdle closes a session only if its gate can be taken without
// blocking and the idle condition still holds once it is held. A job that
// slipped in keeps the gate, so a session is never torn down under work.
func (m *Manager) evictIfIdle(safe string, s *Session, now time.Time) {
	if !s.gate.TryLock() {
		return
	}
	defer s.gate.Unlock()
	if s.IsClosed() {
		m.remove(safe, s)
		return
	}
	idle := now.Sub(s.LastActive())
	if idle <= m.cfg.HardIdleTimeout {
		// Activity raced in between the snapshot and the lock.
		return
	}
	m.logger.Info("evicting idle session", "identity", safe, "idle", idle.Round(time.Second))
	s.Close()
	m.remove(safe, s)
}
