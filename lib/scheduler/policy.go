package scheduler

import (
	"math"
	"time"

	"github.com/regwatch/regwatch/config"
	"github.com/regwatch/regwatch/lib/models"
)

// SchedulePolicy maps a target to its effective check interval. It is a plain
// value so scheduling decisions can be exercised without a database.
type SchedulePolicy struct {
	TierIntervals map[models.Priority]time.Duration

	// Backoff after rate-limited sessions: the base interval is multiplied by
	// BackoffFactor^streak, capped at BackoffCap.
	BackoffFactor float64
	BackoffCap    float64
}

func DefaultPolicy() SchedulePolicy {
	return SchedulePolicy{
		TierIntervals: map[models.Priority]time.Duration{
			models.PriorityCritical: 6 * time.Hour,
			models.PriorityHigh:     12 * time.Hour,
			models.PriorityMedium:   24 * time.Hour,
			models.PriorityLow:      72 * time.Hour,
			models.PriorityTesting:  5 * time.Minute,
		},
		BackoffFactor: 2,
		BackoffCap:    16,
	}
}

func PolicyFromConfig(cfg *config.Config) SchedulePolicy {
	policy := DefaultPolicy()
	sc := cfg.Scheduler

	minutes := func(n int, fallback time.Duration) time.Duration {
		if n <= 0 {
			return fallback
		}
		return time.Duration(n) * time.Minute
	}
	policy.TierIntervals = map[models.Priority]time.Duration{
		models.PriorityCritical: minutes(sc.CriticalMinutes, policy.TierIntervals[models.PriorityCritical]),
		models.PriorityHigh:     minutes(sc.HighMinutes, policy.TierIntervals[models.PriorityHigh]),
		models.PriorityMedium:   minutes(sc.MediumMinutes, policy.TierIntervals[models.PriorityMedium]),
		models.PriorityLow:      minutes(sc.LowMinutes, policy.TierIntervals[models.PriorityLow]),
		models.PriorityTesting:  minutes(sc.TestingMinutes, policy.TierIntervals[models.PriorityTesting]),
	}
	if sc.BackoffFactor > 1 {
		policy.BackoffFactor = sc.BackoffFactor
	}
	if sc.BackoffCap >= 1 {
		policy.BackoffCap = sc.BackoffCap
	}
	return policy
}

// BaseInterval is the target's own interval if set, otherwise its tier's.
func (p SchedulePolicy) BaseInterval(target *models.Target) time.Duration {
	if target.IntervalMinutes > 0 {
		return time.Duration(target.IntervalMinutes) * time.Minute
	}
	if d, ok := p.TierIntervals[target.Priority]; ok {
		return d
	}
	return p.TierIntervals[models.PriorityMedium]
}

// EffectiveInterval applies rate-limit backoff on top of the base interval.
func (p SchedulePolicy) EffectiveInterval(target *models.Target) time.Duration {
	base := p.BaseInterval(target)
	if target.RateLimitStreak <= 0 {
		return base
	}
	multiplier := math.Pow(p.BackoffFactor, float64(target.RateLimitStreak))
	if multiplier > p.BackoffCap {
		multiplier = p.BackoffCap
	}
	return time.Duration(float64(base) * multiplier)
}

// Due reports whether the target should be checked at the given time.
func (p SchedulePolicy) Due(target *models.Target, now time.Time) bool {
	if !target.Active || target.Paused {
		return false
	}
	if !target.LastChecked.Valid {
		return true
	}
	return !target.LastChecked.Time.Add(p.EffectiveInterval(target)).After(now)
}
