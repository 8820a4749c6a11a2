package differ

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/regwatch/regwatch/lib/models"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result describes how newly fetched content relates to the stored snapshot.
type Result struct {
	Changed   bool
	FirstSeen bool // no prior snapshot existed; this capture is the baseline

	// Populated when Changed and not FirstSeen.
	Text    string   // textual diff for the classifier prompt
	Added   []string // inserted fragments
	Removed []string // deleted fragments
}

// Engine compares fetched content against the last snapshot and owns snapshot
// replacement: whenever content changed, the new capture becomes the current
// snapshot regardless of whether the change is later judged meaningful.
type Engine struct {
	db  *gorm.DB
	log *zap.Logger
	dmp *diffmatchpatch.DiffMatchPatch
}

func NewEngine(db *gorm.DB, log *zap.Logger) *Engine {
	return &Engine{db: db, log: log, dmp: diffmatchpatch.New()}
}

// Compare diffs content against the target's current snapshot.
// Identical digests short-circuit without touching storage.
func (e *Engine) Compare(ctx context.Context, target *models.Target, content *models.PageContent) (*Result, error) {
	digest := models.DigestContent(content.Text)

	var prev models.Snapshot
	tx := e.db.WithContext(ctx).
		Where("target_id = ?", target.ID).
		Order("captured_at desc").
		First(&prev)

	switch {
	case errors.Is(tx.Error, gorm.ErrRecordNotFound):
		// First observation establishes the baseline.
		if err := e.saveSnapshot(ctx, target, content, digest); err != nil {
			return nil, err
		}
		return &Result{Changed: true, FirstSeen: true}, nil

	case tx.Error != nil:
		return nil, tx.Error
	}

	if prev.ContentDigest == digest {
		return &Result{Changed: false}, nil
	}

	result := e.diff(prev.Content, content.Text)
	if err := e.saveSnapshot(ctx, target, content, digest); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) diff(before, after string) *Result {
	diffs := e.dmp.DiffMain(before, after, true)
	diffs = e.dmp.DiffCleanupSemantic(diffs)

	result := &Result{Changed: true}
	var text strings.Builder
	for _, d := range diffs {
		fragment := strings.TrimSpace(d.Text)
		if fragment == "" {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			result.Added = append(result.Added, fragment)
			text.WriteString("+ " + fragment + "\n")
		case diffmatchpatch.DiffDelete:
			result.Removed = append(result.Removed, fragment)
			text.WriteString("- " + fragment + "\n")
		}
	}
	result.Text = text.String()
	return result
}

// saveSnapshot appends a new current snapshot. History rows are kept until
// the retention purge removes them.
func (e *Engine) saveSnapshot(ctx context.Context, target *models.Target, content *models.PageContent, digest string) error {
	snap := models.Snapshot{
		TargetID:      target.ID,
		CapturedAt:    time.Now().UTC(),
		Content:       content.Text,
		ContentDigest: digest,
	}
	return e.db.WithContext(ctx).Create(&snap).Error
}

// PurgeOld deletes snapshot history beyond the retention cutoff. The newest
// snapshot per target is always kept, since it is the comparison baseline.
func (e *Engine) PurgeOld(ctx context.Context, cutoff time.Time) {
	tx := e.db.WithContext(ctx).
		Where("captured_at < ?", cutoff).
		Where("captured_at < (SELECT MAX(s.captured_at) FROM snapshots s WHERE s.target_id = snapshots.target_id)").
		Delete(&models.Snapshot{})
	if err := tx.Error; err != nil {
		e.log.Sugar().Errorf("PurgeOld error: %+v", err)
	}
	if tx.RowsAffected > 0 {
		e.log.Sugar().Infof("Purged %d old snapshots", tx.RowsAffected)
	}
}
