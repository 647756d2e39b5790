package monitor

import (
	"time"

	"github.com/mozilla-ai/healthd/internal/domain"
)

// componentState is the monitor's running view of one component.
type componentState struct {
	health  domain.ComponentHealth
	checked bool

	// upSince is when the current up period started; zero while down.
	upSince time.Time

	// accrued is the up time carried over from before upSince.
	accrued time.Duration

	// streak counts consecutive probes reporting streakStatus.
	streakStatus domain.Status
	streak       int

	// confirmed is the last status that held for a full debounce window.
	confirmed domain.Status

	recovering       bool
	recoveryAttempts int
}

// transition is a status change observed by a fold.
type transition struct {
	from domain.Status
	to   domain.Status
}

// fold merges a probe result into the state and returns the published component health.
// The second result is set when the status changed.
func (s *componentState) fold(result domain.ComponentHealth, now time.Time) (domain.ComponentHealth, *transition) {
	prev := s.health.Status
	first := !s.checked

	next := result.Clone()
	next.ErrorCount = s.health.ErrorCount
	next.RecoveryAttempts = s.recoveryAttempts

	if next.Status == domain.StatusDown {
		next.ErrorCount++
		if !s.upSince.IsZero() {
			s.accrued += now.Sub(s.upSince)
			s.upSince = time.Time{}
		}
	} else {
		if s.upSince.IsZero() {
			if !first && prev == domain.StatusDown && next.Status == domain.StatusHealthy {
				// A full outage is over: uptime and the error count start again.
				s.accrued = 0
				next.ErrorCount = 0
			}
			s.upSince = now
		}
	}

	if next.Status == domain.StatusHealthy {
		s.recoveryAttempts = 0
		next.RecoveryAttempts = 0
	}

	next.UptimeSeconds = s.uptime(now).Seconds()

	s.health = next
	s.checked = true

	if first || prev == next.Status {
		return next.Clone(), nil
	}
	return next.Clone(), &transition{from: prev, to: next.Status}
}

// confirm advances the debounce streak and reports whether the confirmed status changed.
func (s *componentState) confirm(status domain.Status, debounce int) (domain.Status, bool) {
	if status == s.streakStatus {
		s.streak++
	} else {
		s.streakStatus = status
		s.streak = 1
	}

	if s.streak < debounce || status == s.confirmed {
		return s.confirmed, false
	}

	prev := s.confirmed
	s.confirmed = status
	return prev, true
}

func (s *componentState) uptime(now time.Time) time.Duration {
	if s.upSince.IsZero() {
		return s.accrued
	}
	return s.accrued + now.Sub(s.upSince)
}
