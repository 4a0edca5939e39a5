package recorder

import "time"

// RestartPolicy decides how long to wait before respawning the
// recognition engine. Error restarts back off linearly and are capped per
// burst: an error counts as rapid when it arrives within BurstWindow of
// the previous (re)start, and BurstLimit consecutive rapid errors exhaust
// the budget.
type RestartPolicy struct {
	Base         time.Duration
	Step         time.Duration
	Max          time.Duration
	SilenceDelay time.Duration
	BurstWindow  time.Duration
	BurstLimit   int

	count       int
	windowStart time.Time
}

// Restarted records that the engine was (re)started at now.
func (p *RestartPolicy) Restarted(now time.Time) {
	p.windowStart = now
}

// OnError returns the delay for an error-cause restart, or false when the
// burst budget is spent.
func (p *RestartPolicy) OnError(now time.Time) (time.Duration, bool) {
	if p.windowStart.IsZero() || now.Sub(p.windowStart) > p.BurstWindow {
		p.count = 0
	}
	if p.count >= p.BurstLimit {
		return 0, false
	}
	delay := p.Base + time.Duration(p.count)*p.Step
	if p.Max > 0 && delay > p.Max {
		delay = p.Max
	}
	p.count++
	return delay, true
}

// OnSilence returns the fixed delay for re-arming after a normal engine end.
func (p *RestartPolicy) OnSilence() time.Duration {
	return p.SilenceDelay
}

// Count is the number of rapid error restarts in the current burst.
func (p *RestartPolicy) Count() int {
	return p.count
}

// Rapid is Count as seen at now: the burst is over once BurstWindow
// passes without a restart.
func (p *RestartPolicy) Rapid(now time.Time) int {
	if p.windowStart.IsZero() || now.Sub(p.windowStart) > p.BurstWindow {
		return 0
	}
	return p.count
}
