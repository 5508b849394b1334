package session

import (
	"context"
	"time"
)

// WarmResult reports the outcome of a warm (keep-alive) attempt.
type WarmResult struct {
	Ran       bool          // the warm operation actually executed
	Reason    string        // "cooldown", "disabled" or "no-resource" when it did not
	Remaining time.Duration // time left on the cooldown when Reason is "cooldown"
	Err       error         // warm operation failure, when Ran
}

// RunWarm runs a warm job for an identity right now, going through the
// system path so it does not touch the activity clock. If the session's
// cooldown has not elapsed, nothing is queued and the remaining wait is
// returned instead.
func (m *Manager) RunWarm(ctx context.Context, rawIdentity string) WarmResult {
	if m.warmFn == nil {
		return WarmResult{Reason: "disabled"}
	}
	s, err := m.GetOrCreate(rawIdentity)
	if err != nil {
		return WarmResult{Err: err}
	}
	if rem := s.warmCooldownRemaining(m.cfg.WarmCooldown); rem > 0 {
		return WarmResult{Reason: "cooldown", Remaining: rem}
	}
	return m.runWarmJob(ctx, s, false)
}

// runWarmJob executes the warm operation under the gate. The cooldown is
// re-checked once the gate is held: if another warm job finished while this
// one queued, it bails instead of running back to back. With requireResource
// set the job also bails when the session has no open browser, so a
// scheduled warm that loses its session to eviction never opens one of its
// own.
func (m *Manager) runWarmJob(ctx context.Context, s *Session, requireResource bool) WarmResult {
	var out WarmResult
	err := m.RunForSystem(ctx, s.IdentitySafe, func(ctx context.Context, s *Session) error {
		if rem := s.warmCooldownRemaining(m.cfg.WarmCooldown); rem > 0 {
			out = WarmResult{Reason: "cooldown", Remaining: rem}
			return nil
		}
		if requireResource && !s.HasResource() {
			out = WarmResult{Reason: "no-resource"}
			return nil
		}
		res, err := s.EnsureResource(ctx, m.drv)
		if err != nil {
			return err
		}
		warmErr := m.warmFn(ctx, res)
		s.markWarmRun()
		out = WarmResult{Ran: true, Err: warmErr}
		return nil
	})
	if err != nil {
		return WarmResult{Err: err}
	}
	return out
}

// triggerWarmAsync schedules a warm job in the background. The warmRunning
// flag keeps the janitor from stacking attempts every tick while one is
// already queued; failures are logged, never surfaced.
func (m *Manager) triggerWarmAsync(s *Session, origin string) {
	if m.warmFn == nil {
		return
	}
	if rem := s.warmCooldownRemaining(m.cfg.WarmCooldown); rem > 0 {
		return
	}
	if !s.warmRunning.CompareAndSwap(false, true) {
		return
	}
	m.logger.Debug("warm job scheduled", "identity", s.IdentitySafe, "origin", origin)
	go func() {
		defer s.warmRunning.Store(false)
		res := m.runWarmJob(context.Background(), s, true)
		switch {
		case res.Err != nil:
			m.logger.Warn("warm job failed", "identity", s.IdentitySafe, "origin", origin, "error", res.Err)
		case res.Ran:
			m.logger.Info("warm job completed", "identity", s.IdentitySafe, "origin", origin)
		}
	}()
}
