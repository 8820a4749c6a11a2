package differ

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/regwatch/regwatch/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Target{}, &models.Snapshot{}))
	return db
}

func newTestTarget(t *testing.T, db *gorm.DB) *models.Target {
	t.Helper()
	target := &models.Target{URL: "https://example.gov/rule", Priority: models.PriorityMedium, Active: true}
	require.NoError(t, db.Create(target).Error)
	return target
}

func snapshotCount(t *testing.T, db *gorm.DB, targetID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Snapshot{}).Where("target_id = ?", targetID).Count(&count).Error)
	return count
}

func TestCompareFirstSeen(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := NewEngine(db, zap.NewNop())
	target := newTestTarget(t, db)

	result, err := engine.Compare(ctx, target, &models.PageContent{Text: "Minimum wage is $15.00 per hour."})

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.True(t, result.FirstSeen, "first observation is the baseline, not a reportable change")
	assert.EqualValues(t, 1, snapshotCount(t, db, target.ID))
}

func TestCompareIdenticalContent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := NewEngine(db, zap.NewNop())
	target := newTestTarget(t, db)
	content := &models.PageContent{Text: "Minimum wage is $15.00 per hour."}

	_, err := engine.Compare(ctx, target, content)
	require.NoError(t, err)

	// Identical content twice in a row is never a change and never rewrites
	// the snapshot.
	for i := 0; i < 2; i++ {
		result, err := engine.Compare(ctx, target, content)
		require.NoError(t, err)
		assert.False(t, result.Changed)
		assert.False(t, result.FirstSeen)
	}
	assert.EqualValues(t, 1, snapshotCount(t, db, target.ID))
}

func TestCompareChangedContent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := NewEngine(db, zap.NewNop())
	target := newTestTarget(t, db)

	_, err := engine.Compare(ctx, target, &models.PageContent{Text: "Minimum wage is $15.00 per hour. Filing deadline: March 1."})
	require.NoError(t, err)

	updated := &models.PageContent{Text: "Minimum wage is $16.50 per hour. Filing deadline: March 1."}
	result, err := engine.Compare(ctx, target, updated)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.False(t, result.FirstSeen)
	assert.NotEmpty(t, result.Text)
	assert.NotEmpty(t, result.Added)
	assert.NotEmpty(t, result.Removed)
	assert.Contains(t, strings.Join(result.Added, " "), "6")

	// The new content replaces the snapshot regardless of what the classifier
	// later decides.
	assert.EqualValues(t, 2, snapshotCount(t, db, target.ID))

	var latest models.Snapshot
	require.NoError(t, db.Where("target_id = ?", target.ID).Order("captured_at desc").First(&latest).Error)
	assert.Equal(t, models.DigestContent(updated.Text), latest.ContentDigest)
}

func TestPurgeOldKeepsCurrentSnapshot(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := NewEngine(db, zap.NewNop())
	target := newTestTarget(t, db)

	old := models.Snapshot{TargetID: target.ID, CapturedAt: time.Now().UTC().Add(-48 * time.Hour), Content: "v1"}
	older := models.Snapshot{TargetID: target.ID, CapturedAt: time.Now().UTC().Add(-96 * time.Hour), Content: "v0"}
	require.NoError(t, db.Create(&older).Error)
	require.NoError(t, db.Create(&old).Error)

	engine.PurgeOld(ctx, time.Now().UTC().Add(-24*time.Hour))

	var remaining models.Snapshots
	require.NoError(t, db.Where("target_id = ?", target.ID).Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "v1", remaining[0].Content, "the newest snapshot is the baseline and must survive retention")
}
