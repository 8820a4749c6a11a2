package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/regwatch/regwatch/config"
	"github.com/regwatch/regwatch/lib/classifier"
	"github.com/regwatch/regwatch/lib/differ"
	"github.com/regwatch/regwatch/lib/fetcher"
	"github.com/regwatch/regwatch/lib/models"
	"github.com/regwatch/regwatch/lib/scheduler"
	"github.com/regwatch/regwatch/lib/session"
	"github.com/regwatch/regwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dispatcher is the periodic driver: on each tick it asks the scheduler for
// due targets and runs the fetch -> diff -> classify pipeline for each.
// Per-target pipelines run concurrently with each other, never with
// themselves; admission is enforced by the session manager.
type Dispatcher struct {
	db       *gorm.DB
	log      *zap.Logger
	sched    *scheduler.Scheduler
	sessions *session.Manager
	diffs    *differ.Engine
	classify classifier.Classifier
	fetch    fetcher.Fetcher
	senders  senders.Registry

	tickInterval time.Duration
	fetchTimeout time.Duration
	snapshotTTL  time.Duration

	cancel context.CancelFunc
}

func NewDispatcher(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.Logger,
	db *gorm.DB,
	sched *scheduler.Scheduler,
	sessions *session.Manager,
	diffs *differ.Engine,
	classify classifier.Classifier,
	fetch fetcher.Fetcher,
	senders senders.Registry,
) *Dispatcher {
	d := &Dispatcher{
		db:       db,
		log:      log,
		sched:    sched,
		sessions: sessions,
		diffs:    diffs,
		classify: classify,
		fetch:    fetch,
		senders:  senders,

		tickInterval: cfg.Monitor.TickInterval,
		fetchTimeout: cfg.Monitor.FetchTimeout,
		snapshotTTL:  cfg.Monitor.SnapshotTTL,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go d.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop dispatcher")
			d.Stop()
			return nil
		},
	})

	return d
}

func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	ticker := tickerWithImmediateTick(d.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Sugar().Info("Dispatcher stopped")
			return

		case tickStart := <-ticker.C:
			d.runTick(ctx, tickStart.UTC())
		}
	}
}

func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

// runTick fans out one pipeline goroutine per due target. It does not block
// the ticker waiting for stragglers: a slow target simply still has a
// non-terminal session next tick and is excluded from due-selection.
func (d *Dispatcher) runTick(ctx context.Context, tickStart time.Time) {
	due := d.sched.SelectDue(ctx, tickStart)

	metrics := &tickMetrics{selected: len(due)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, target := range due {
		wg.Add(1)
		go func(target *models.Target) {
			defer wg.Done()
			m := d.checkTarget(ctx, target)

			mu.Lock()
			defer mu.Unlock()
			metrics.Add(m)
		}(target)
	}

	d.diffs.PurgeOld(ctx, tickStart.Add(-d.snapshotTTL))

	go func() {
		wg.Wait()
		if metrics.selected > 0 {
			d.logTick(metrics, tickStart)
		}
	}()
}

func (d *Dispatcher) logTick(m *tickMetrics, tickStart time.Time) {
	args := make([]any, 0)
	if m.skipped != 0 {
		args = append(args, "skipped", m.skipped)
	}
	if m.failed != 0 {
		args = append(args, "failed", m.failed)
	}
	if m.rateLimited != 0 {
		args = append(args, "rate_limited", m.rateLimited)
	}
	if m.unchanged != 0 {
		args = append(args, "unchanged", m.unchanged)
	}
	if m.changed != 0 {
		args = append(args, "changed", m.changed)
	}
	if m.meaningful != 0 {
		args = append(args, "meaningful", m.meaningful)
	}

	elapsed := time.Now().UTC().Sub(tickStart)
	args = append(args, "elapsed_msecs", int(elapsed.Milliseconds()))

	d.log.Sugar().Infow(fmt.Sprintf("Processed %d targets", m.selected), args...)
}

// CheckNow runs an out-of-schedule check for one target. It goes through the
// same pipeline and admission check as a scheduled run. Returns false when a
// session was already in flight.
func (d *Dispatcher) CheckNow(ctx context.Context, targetID uint) (bool, error) {
	var target models.Target
	if err := d.db.WithContext(ctx).First(&target, targetID).Error; err != nil {
		return false, err
	}

	m := d.checkTarget(ctx, &target)
	return m.skipped == 0, nil
}

// checkTarget runs the whole pipeline for a single target.
func (d *Dispatcher) checkTarget(ctx context.Context, target *models.Target) *tickMetrics {
	m := &tickMetrics{}

	sess, admitted, err := d.sessions.Start(ctx, target)
	if err != nil {
		d.log.Sugar().Errorw("Failed to start session", "target_id", target.ID, "err", err)
		m.failed++
		return m
	}
	if !admitted {
		d.log.Sugar().Debugf("Target id:%v already has session id:%v in flight", target.ID, sess.ID)
		m.skipped++
		return m
	}

	defer func() {
		// Invariant violations must not leak past a single target's pipeline,
		// and the session must still resolve to a terminal state.
		if r := recover(); r != nil {
			d.log.Sugar().Errorw("Pipeline panicked", "target_id", target.ID, "panic", r)
			if failErr := d.sessions.Fail(ctx, sess, fmt.Sprintf("internal error: %v", r), false); failErr != nil {
				d.log.Sugar().Errorw("Failed to resolve panicked session", "session_id", sess.ID, "err", failErr)
			}
			m.failed++
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	content, err := d.fetch.Fetch(fetchCtx, target.URL)
	if err != nil {
		rateLimited := fetcher.IsRateLimited(err)
		if rateLimited {
			m.rateLimited++
			d.log.Sugar().Warnf("Target id:%v is rate limited, backing off", target.ID)
		}
		d.failSession(ctx, sess, err)
		m.failed++
		return m
	}

	result, err := d.diffs.Compare(ctx, target, content)
	if err != nil {
		d.failSession(ctx, sess, err)
		m.failed++
		return m
	}

	switch {
	case !result.Changed:
		m.unchanged++
	case result.FirstSeen:
		// Baseline capture, never reported as a change.
		d.log.Sugar().Infof("Captured baseline snapshot for target id:%v", target.ID)
	default:
		m.changed++
		if analysis := d.classifyChange(ctx, target, sess, result); analysis != nil && analysis.Meaningful {
			m.meaningful++
			d.notify(ctx, target, analysis)
		}
	}

	if err := d.sessions.Complete(ctx, sess, 1); err != nil {
		d.log.Sugar().Errorw("Failed to complete session", "session_id", sess.ID, "err", err)
		m.failed++
		return m
	}
	m.completed++
	return m
}

func (d *Dispatcher) failSession(ctx context.Context, sess *models.CrawlSession, cause error) {
	d.log.Sugar().Errorw("Session failed", "session_id", sess.ID, "err", cause)
	if err := d.sessions.Fail(ctx, sess, cause.Error(), fetcher.IsRateLimited(cause)); err != nil {
		d.log.Sugar().Errorw("Failed to resolve session", "session_id", sess.ID, "err", err)
	}
}

// classifyChange asks the classifier for a verdict and persists it. A failed
// classifier call is degraded-but-non-fatal: the session still completes,
// just without an analysis record.
func (d *Dispatcher) classifyChange(ctx context.Context, target *models.Target, sess *models.CrawlSession, result *differ.Result) *models.ChangeAnalysis {
	analysis, err := d.classify.Classify(ctx, target, result)
	if err != nil {
		d.log.Sugar().Warnw("Classification skipped", "target_id", target.ID, "err", err)
		return nil
	}

	analysis.SessionID = sess.ID
	if err := d.db.WithContext(ctx).Create(analysis).Error; err != nil {
		d.log.Sugar().Errorw("Failed to persist change analysis", "target_id", target.ID, "err", err)
		return nil
	}
	return analysis
}

func (d *Dispatcher) notify(ctx context.Context, target *models.Target, analysis *models.ChangeAnalysis) {
	for platform, sender := range d.senders {
		id, err := sender.SendChangeAlert(ctx, target, analysis)
		if err != nil {
			d.log.Sugar().Infow("Failed to send change alert", "platform", platform, "err", err)
			continue
		}
		d.log.Sugar().Infow("Sent change alert", "platform", platform, "message_id", id)
	}
}
