package scheduler

import (
	"context"
	"time"

	"github.com/regwatch/regwatch/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Scheduler decides which targets are due for a check on each dispatch tick.
type Scheduler struct {
	db     *gorm.DB
	log    *zap.Logger
	policy SchedulePolicy
}

func NewScheduler(db *gorm.DB, log *zap.Logger, policy SchedulePolicy) *Scheduler {
	return &Scheduler{db: db, log: log, policy: policy}
}

func (s *Scheduler) Policy() SchedulePolicy {
	return s.policy
}

// SelectDue returns every active, non-paused target whose effective interval
// has elapsed, excluding targets that still have a session in flight.
// Selection never fails; it degrades to an empty list so a storage hiccup
// cannot take down the dispatcher.
func (s *Scheduler) SelectDue(ctx context.Context, now time.Time) models.Targets {
	var candidates models.Targets
	tx := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("paused = ?", false).
		Find(&candidates)
	if err := tx.Error; err != nil {
		s.log.Sugar().Errorw("Failed to load targets, skipping tick", "err", err)
		return nil
	}

	due := make(models.Targets, 0, len(candidates))
	for _, target := range candidates {
		if s.policy.Due(target, now) {
			due = append(due, target)
		}
	}
	if len(due) == 0 {
		return nil
	}

	return s.excludeInFlight(ctx, due)
}

// excludeInFlight drops targets that already have a non-terminal session.
// The session manager enforces this again atomically at admission; filtering
// here just avoids pointless dispatches.
func (s *Scheduler) excludeInFlight(ctx context.Context, due models.Targets) models.Targets {
	ids := make([]uint, len(due))
	for i, target := range due {
		ids[i] = target.ID
	}

	var busy []uint
	tx := s.db.WithContext(ctx).
		Model(&models.CrawlSession{}).
		Where("target_id IN ?", ids).
		Where("status IN ?", models.NonTerminalStatuses).
		Distinct().
		Pluck("target_id", &busy)
	if err := tx.Error; err != nil {
		s.log.Sugar().Errorw("Failed to check in-flight sessions, skipping tick", "err", err)
		return nil
	}

	busySet := make(map[uint]bool, len(busy))
	for _, id := range busy {
		busySet[id] = true
	}

	out := make(models.Targets, 0, len(due))
	for _, target := range due {
		if busySet[target.ID] {
			s.log.Sugar().Debugf("Target id:%v still has a session in flight, skipping", target.ID)
			continue
		}
		out = append(out, target)
	}
	return out
}
