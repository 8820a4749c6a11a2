package models

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityTesting  Priority = "testing"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityTesting:
		return true
	}
	return false
}

// Target is one monitored URL, typically a government or regulatory page.
type Target struct {
	gorm.Model
	URL             string `gorm:"uniqueIndex"`
	Name            string
	Priority        Priority
	IntervalMinutes int // overrides the tier interval when > 0
	Active          bool
	Paused          bool
	LastChecked     sql.NullTime
	RateLimitStreak int // consecutive rate-limited sessions, drives backoff
}

type Targets []*Target

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// NonTerminalStatuses is used when checking admission for a new session.
var NonTerminalStatuses = []SessionStatus{SessionPending, SessionRunning}

// CrawlSession is one attempt to check one target.
type CrawlSession struct {
	gorm.Model
	TargetID      uint          `gorm:"index:idx_target_status"`
	Status        SessionStatus `gorm:"index:idx_target_status"`
	StartedAt     time.Time
	CompletedAt   sql.NullTime
	Error         string
	ItemsExamined int

	Target Target
}

type CrawlSessions []*CrawlSession

// Snapshot is the content seen for a target at a point in time. The newest
// row per target is the current snapshot; older rows are history.
type Snapshot struct {
	TargetID      uint      `gorm:"index:idx_target_captured"`
	CapturedAt    time.Time `gorm:"index:idx_target_captured"`
	Content       string
	ContentDigest string
}

type Snapshots []Snapshot

func (s *Snapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ContentDigest == "" {
		s.ContentDigest = DigestContent(s.Content)
	}
	return nil
}

// ChangeAnalysis is the classifier verdict for one diff.
type ChangeAnalysis struct {
	ID         uint `gorm:"primarykey"`
	TargetID   uint `gorm:"index"`
	SessionID  uint
	Score      int
	Meaningful bool
	Reasoning  string
	Model      string
	AnalyzedAt time.Time
}

type ChangeAnalyses []*ChangeAnalysis
