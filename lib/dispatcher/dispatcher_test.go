package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/regwatch/regwatch/lib/classifier"
	"github.com/regwatch/regwatch/lib/differ"
	"github.com/regwatch/regwatch/lib/fetcher"
	"github.com/regwatch/regwatch/lib/models"
	"github.com/regwatch/regwatch/lib/scheduler"
	"github.com/regwatch/regwatch/lib/session"
	"github.com/regwatch/regwatch/senders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeFetcher struct {
	content *models.PageContent
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*models.PageContent, error) {
	return f.content, f.err
}

type fakeClassifier struct {
	analysis *models.ChangeAnalysis
	err      error
	calls    int
}

func (f *fakeClassifier) Classify(ctx context.Context, target *models.Target, diff *differ.Result) (*models.ChangeAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := *f.analysis
	out.TargetID = target.ID
	return &out, nil
}

var _ classifier.Classifier = (*fakeClassifier)(nil)
var _ fetcher.Fetcher = (*fakeFetcher)(nil)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Target{},
		&models.CrawlSession{},
		&models.Snapshot{},
		&models.ChangeAnalysis{},
	))
	return db
}

func newTestDispatcher(t *testing.T, db *gorm.DB, fetch fetcher.Fetcher, classify classifier.Classifier) *Dispatcher {
	t.Helper()
	log := zap.NewNop()
	return &Dispatcher{
		db:       db,
		log:      log,
		sched:    scheduler.NewScheduler(db, log, scheduler.DefaultPolicy()),
		sessions: session.NewManager(db, log),
		diffs:    differ.NewEngine(db, log),
		classify: classify,
		fetch:    fetch,
		senders:  senders.Registry{},

		tickInterval: time.Minute,
		fetchTimeout: 5 * time.Second,
		snapshotTTL:  24 * time.Hour,
	}
}

func newTestTarget(t *testing.T, db *gorm.DB) *models.Target {
	t.Helper()
	target := &models.Target{URL: "https://example.gov/rule", Name: "Rule", Priority: models.PriorityCritical, Active: true}
	require.NoError(t, db.Create(target).Error)
	return target
}

func seedSnapshot(t *testing.T, db *gorm.DB, target *models.Target, content string) {
	t.Helper()
	snap := models.Snapshot{TargetID: target.ID, CapturedAt: time.Now().UTC().Add(-time.Hour), Content: content}
	require.NoError(t, db.Create(&snap).Error)
}

func analysisCount(t *testing.T, db *gorm.DB, targetID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.ChangeAnalysis{}).Where("target_id = ?", targetID).Count(&count).Error)
	return count
}

func lastSession(t *testing.T, db *gorm.DB, targetID uint) *models.CrawlSession {
	t.Helper()
	sess := &models.CrawlSession{}
	require.NoError(t, db.Where("target_id = ?", targetID).Order("id desc").First(sess).Error)
	return sess
}

func TestCheckTargetUnchangedContent(t *testing.T) {
	// Scenario: fetched content is identical to the stored snapshot.
	ctx := context.Background()
	db := newTestDB(t)
	target := newTestTarget(t, db)
	seedSnapshot(t, db, target, "Minimum wage is $15.00.")

	classify := &fakeClassifier{}
	d := newTestDispatcher(t, db, &fakeFetcher{content: &models.PageContent{Text: "Minimum wage is $15.00."}}, classify)

	m := d.checkTarget(ctx, target)

	assert.Equal(t, 1, m.completed)
	assert.Equal(t, 1, m.unchanged)
	assert.Equal(t, models.SessionCompleted, lastSession(t, db, target.ID).Status)
	assert.Zero(t, classify.calls, "unchanged content must never reach the classifier")
	assert.Zero(t, analysisCount(t, db, target.ID))
}

func TestCheckTargetMeaningfulChange(t *testing.T) {
	// Scenario: content changed and the classifier scores it above threshold.
	ctx := context.Background()
	db := newTestDB(t)
	target := newTestTarget(t, db)
	seedSnapshot(t, db, target, "Minimum wage is $15.00.")

	classify := &fakeClassifier{analysis: &models.ChangeAnalysis{
		Score: 85, Meaningful: true, Reasoning: "New deadline added", Model: "test-model", AnalyzedAt: time.Now().UTC(),
	}}
	d := newTestDispatcher(t, db, &fakeFetcher{content: &models.PageContent{Text: "Minimum wage is $16.50."}}, classify)

	m := d.checkTarget(ctx, target)

	assert.Equal(t, 1, m.completed)
	assert.Equal(t, 1, m.changed)
	assert.Equal(t, 1, m.meaningful)

	var analysis models.ChangeAnalysis
	require.NoError(t, db.Where("target_id = ?", target.ID).First(&analysis).Error)
	assert.True(t, analysis.Meaningful)
	assert.Equal(t, lastSession(t, db, target.ID).ID, analysis.SessionID)

	var latest models.Snapshot
	require.NoError(t, db.Where("target_id = ?", target.ID).Order("captured_at desc").First(&latest).Error)
	assert.Equal(t, models.DigestContent("Minimum wage is $16.50."), latest.ContentDigest)
}

func TestCheckTargetRateLimited(t *testing.T) {
	// Scenario: the fetch is rejected with a rate limit.
	ctx := context.Background()
	db := newTestDB(t)
	target := newTestTarget(t, db)

	fetchErr := &fetcher.FetchError{Kind: fetcher.ErrRateLimited, URL: target.URL, Err: errors.New("429")}
	d := newTestDispatcher(t, db, &fakeFetcher{err: fetchErr}, &fakeClassifier{})

	m := d.checkTarget(ctx, target)

	assert.Equal(t, 1, m.failed)
	assert.Equal(t, 1, m.rateLimited)

	sess := lastSession(t, db, target.ID)
	assert.Equal(t, models.SessionFailed, sess.Status)
	assert.True(t, sess.CompletedAt.Valid)
	assert.NotEmpty(t, sess.Error)

	var stored models.Target
	require.NoError(t, db.First(&stored, target.ID).Error)
	assert.Equal(t, 1, stored.RateLimitStreak)
	assert.True(t, stored.LastChecked.Valid, "a failed check still advances last-checked")
}

func TestCheckTargetFirstSeen(t *testing.T) {
	// Scenario: first-ever fetch establishes the baseline.
	ctx := context.Background()
	db := newTestDB(t)
	target := newTestTarget(t, db)

	classify := &fakeClassifier{}
	d := newTestDispatcher(t, db, &fakeFetcher{content: &models.PageContent{Text: "Minimum wage is $15.00."}}, classify)

	m := d.checkTarget(ctx, target)

	assert.Equal(t, 1, m.completed)
	assert.Zero(t, m.changed)
	assert.Zero(t, classify.calls, "the baseline capture is never classified")
	assert.Zero(t, analysisCount(t, db, target.ID))

	var count int64
	require.NoError(t, db.Model(&models.Snapshot{}).Where("target_id = ?", target.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCheckTargetClassifierFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	target := newTestTarget(t, db)
	seedSnapshot(t, db, target, "old content")

	classify := &fakeClassifier{err: errors.New("upstream quota exceeded")}
	d := newTestDispatcher(t, db, &fakeFetcher{content: &models.PageContent{Text: "new content"}}, classify)

	m := d.checkTarget(ctx, target)

	assert.Equal(t, 1, m.completed, "the session completes even when classification is skipped")
	assert.Equal(t, models.SessionCompleted, lastSession(t, db, target.ID).Status)
	assert.Zero(t, analysisCount(t, db, target.ID))
}

func TestCheckNowRespectsAdmission(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	target := newTestTarget(t, db)

	// Simulate a session already in flight.
	mgr := session.NewManager(db, zap.NewNop())
	_, admitted, err := mgr.Start(ctx, target)
	require.NoError(t, err)
	require.True(t, admitted)

	d := newTestDispatcher(t, db, &fakeFetcher{content: &models.PageContent{Text: "x"}}, &fakeClassifier{})

	ok, err := d.CheckNow(ctx, target.ID)

	require.NoError(t, err)
	assert.False(t, ok, "check-now must not start a second concurrent session")
}

func TestRunTickSkipsBusyTargets(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	target := newTestTarget(t, db)

	d := newTestDispatcher(t, db, &fakeFetcher{content: &models.PageContent{Text: "content"}}, &fakeClassifier{})

	due := d.sched.SelectDue(ctx, time.Now().UTC())
	require.Len(t, due, 1)

	// Once a session is running, the same target is no longer selected.
	_, admitted, err := d.sessions.Start(ctx, target)
	require.NoError(t, err)
	require.True(t, admitted)

	due = d.sched.SelectDue(ctx, time.Now().UTC())
	assert.Empty(t, due)
}
