package lib

import (
	"context"
	"errors"
	"fmt"

	"github.com/regwatch/regwatch/config"
	"github.com/regwatch/regwatch/lib/dispatcher"
	"github.com/regwatch/regwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the admin surface over monitored targets. The monitoring
// pipeline itself runs in the dispatcher; this is onboarding and reporting.
type Service struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *gorm.DB
	dispatcher *dispatcher.Dispatcher
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, db *gorm.DB, dispatcher *dispatcher.Dispatcher) *Service {
	return &Service{cfg, log, db, dispatcher}
}

func (svc *Service) CreateTarget(ctx context.Context, url, name string, priority models.Priority, intervalMinutes int) (*models.Target, error) {
	if url == "" {
		return nil, errors.New("url is required")
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("unknown priority %q", priority)
	}
	if name == "" {
		name = url
	}

	target := &models.Target{
		URL:             url,
		Name:            name,
		Priority:        priority,
		IntervalMinutes: intervalMinutes,
		Active:          true,
	}
	tx := svc.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Create(target)
	if err := tx.Error; err != nil {
		return nil, err
	}

	svc.log.Sugar().Infof("Created target id:%v (%s)", target.ID, target.URL)
	return target, nil
}

func (svc *Service) ListTargets(ctx context.Context) (models.Targets, error) {
	var targets models.Targets
	tx := svc.db.WithContext(ctx).Order("id").Find(&targets)
	return targets, tx.Error
}

func (svc *Service) SetPaused(ctx context.Context, targetID uint, paused bool) (*models.Target, error) {
	target, err := svc.findTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}

	tx := svc.db.WithContext(ctx).Model(target).Update("paused", paused)
	if err := tx.Error; err != nil {
		return nil, err
	}
	target.Paused = paused
	return target, nil
}

// Deactivate retires a target. Targets are soft-deactivated, never deleted,
// so their session and analysis history stays queryable.
func (svc *Service) Deactivate(ctx context.Context, targetID uint) (*models.Target, error) {
	target, err := svc.findTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}

	tx := svc.db.WithContext(ctx).Model(target).Update("active", false)
	if err := tx.Error; err != nil {
		return nil, err
	}
	target.Active = false
	return target, nil
}

// CheckNow triggers an out-of-schedule check. Admission still goes through
// the session manager, so a target already being checked is not re-entered.
func (svc *Service) CheckNow(ctx context.Context, targetID uint) (bool, error) {
	return svc.dispatcher.CheckNow(ctx, targetID)
}

func (svc *Service) RecentSessions(ctx context.Context, targetID uint, limit int) (models.CrawlSessions, error) {
	var sessions models.CrawlSessions
	tx := svc.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("started_at desc").
		Limit(limit).
		Find(&sessions)
	return sessions, tx.Error
}

func (svc *Service) RecentAnalyses(ctx context.Context, targetID uint, limit int) (models.ChangeAnalyses, error) {
	var analyses models.ChangeAnalyses
	tx := svc.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("analyzed_at desc").
		Limit(limit).
		Find(&analyses)
	return analyses, tx.Error
}

func (svc *Service) LatestSnapshot(ctx context.Context, targetID uint) (*models.Snapshot, error) {
	snap := &models.Snapshot{}
	tx := svc.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("captured_at desc").
		First(snap)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return snap, nil
}

func (svc *Service) findTarget(ctx context.Context, targetID uint) (*models.Target, error) {
	target := &models.Target{}
	tx := svc.db.WithContext(ctx).First(target, targetID)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return target, nil
}
