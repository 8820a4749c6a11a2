package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/regwatch/regwatch/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrIllegalTransition marks a session transition that violates the state
// machine. Hitting it is a programming error, not an operational one.
var ErrIllegalTransition = errors.New("illegal session transition")

// Manager owns the crawl session state machine:
// pending -> running -> {completed, failed}. It is the sole writer of session
// records; once a session is terminal it is never mutated again.
type Manager struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewManager(db *gorm.DB, log *zap.Logger) *Manager {
	return &Manager{db: db, log: log}
}

// Start admits a new session for the target, or returns the existing one when
// a non-terminal session is already in flight (admitted=false). The existence
// check and the insert run in one transaction so concurrent callers cannot
// both admit a session for the same target.
func (m *Manager) Start(ctx context.Context, target *models.Target) (sess *models.CrawlSession, admitted bool, err error) {
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CrawlSession
		txErr := tx.
			Where("target_id = ?", target.ID).
			Where("status IN ?", models.NonTerminalStatuses).
			First(&existing).Error
		if txErr == nil {
			sess = &existing
			return nil
		}
		if !errors.Is(txErr, gorm.ErrRecordNotFound) {
			return txErr
		}

		created := &models.CrawlSession{
			TargetID:  target.ID,
			Status:    models.SessionPending,
			StartedAt: time.Now().UTC(),
		}
		if txErr := tx.Clauses(clause.Returning{}).Create(created).Error; txErr != nil {
			return txErr
		}

		// A session spends no observable time in pending; the fetch begins as
		// soon as it is admitted.
		if txErr := tx.Model(created).Update("status", models.SessionRunning).Error; txErr != nil {
			return txErr
		}
		created.Status = models.SessionRunning

		sess = created
		admitted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return sess, admitted, nil
}

// Complete resolves a running session as successful and stamps the target's
// last-checked time. A completed check also clears any rate-limit streak.
func (m *Manager) Complete(ctx context.Context, sess *models.CrawlSession, itemsExamined int) error {
	if err := m.guardRunning(sess, "complete"); err != nil {
		return err
	}

	now := time.Now().UTC()
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":         models.SessionCompleted,
			"completed_at":   now,
			"items_examined": itemsExamined,
		}
		if err := tx.Model(sess).Updates(updates).Error; err != nil {
			return err
		}
		sess.Status = models.SessionCompleted

		return tx.Model(&models.Target{}).
			Where("id = ?", sess.TargetID).
			Updates(map[string]any{"last_checked": now, "rate_limit_streak": 0}).Error
	})
}

// Fail resolves a running session as failed. The target's last-checked time
// still advances so the scheduler does not retry instantly; a rate-limited
// failure additionally lengthens the next interval via the backoff streak.
func (m *Manager) Fail(ctx context.Context, sess *models.CrawlSession, errMessage string, rateLimited bool) error {
	if err := m.guardRunning(sess, "fail"); err != nil {
		return err
	}

	now := time.Now().UTC()
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":       models.SessionFailed,
			"completed_at": now,
			"error":        errMessage,
		}
		if err := tx.Model(sess).Updates(updates).Error; err != nil {
			return err
		}
		sess.Status = models.SessionFailed
		sess.Error = errMessage

		targetUpdates := map[string]any{"last_checked": now}
		if rateLimited {
			targetUpdates["rate_limit_streak"] = gorm.Expr("rate_limit_streak + 1")
		}
		return tx.Model(&models.Target{}).
			Where("id = ?", sess.TargetID).
			Updates(targetUpdates).Error
	})
}

func (m *Manager) guardRunning(sess *models.CrawlSession, op string) error {
	if sess.Status != models.SessionRunning {
		err := fmt.Errorf("%w: cannot %s session id:%v in status %q", ErrIllegalTransition, op, sess.ID, sess.Status)
		m.log.Sugar().Errorw("Session state machine violation", "err", err)
		return err
	}
	return nil
}
