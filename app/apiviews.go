package app

import (
	"database/sql"
	"time"

	"github.com/regwatch/regwatch/lib/models"
)

type TargetView struct {
	ID              uint    `json:"id"`
	URL             string  `json:"url"`
	Name            string  `json:"name"`
	Priority        string  `json:"priority"`
	IntervalMinutes int     `json:"interval_minutes"`
	Active          bool    `json:"active"`
	Paused          bool    `json:"paused"`
	LastChecked     *string `json:"last_checked"`
	RateLimitStreak int     `json:"rate_limit_streak"`
}

func (view TargetView) From(entity *models.Target) TargetView {
	return TargetView{
		ID:              entity.ID,
		URL:             entity.URL,
		Name:            entity.Name,
		Priority:        string(entity.Priority),
		IntervalMinutes: entity.IntervalMinutes,
		Active:          entity.Active,
		Paused:          entity.Paused,
		LastChecked:     isoformat(entity.LastChecked),
		RateLimitStreak: entity.RateLimitStreak,
	}
}

type SessionView struct {
	ID            uint    `json:"id"`
	TargetID      uint    `json:"target_id"`
	Status        string  `json:"status"`
	StartedAt     string  `json:"started_at"`
	CompletedAt   *string `json:"completed_at"`
	Error         string  `json:"error,omitempty"`
	ItemsExamined int     `json:"items_examined"`
}

func (view SessionView) From(entity *models.CrawlSession) SessionView {
	return SessionView{
		ID:            entity.ID,
		TargetID:      entity.TargetID,
		Status:        string(entity.Status),
		StartedAt:     entity.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt:   isoformat(entity.CompletedAt),
		Error:         entity.Error,
		ItemsExamined: entity.ItemsExamined,
	}
}

type AnalysisView struct {
	ID         uint   `json:"id"`
	TargetID   uint   `json:"target_id"`
	SessionID  uint   `json:"session_id"`
	Score      int    `json:"score"`
	Meaningful bool   `json:"meaningful"`
	Reasoning  string `json:"reasoning"`
	Model      string `json:"model"`
	AnalyzedAt string `json:"analyzed_at"`
}

func (view AnalysisView) From(entity *models.ChangeAnalysis) AnalysisView {
	return AnalysisView{
		ID:         entity.ID,
		TargetID:   entity.TargetID,
		SessionID:  entity.SessionID,
		Score:      entity.Score,
		Meaningful: entity.Meaningful,
		Reasoning:  entity.Reasoning,
		Model:      entity.Model,
		AnalyzedAt: entity.AnalyzedAt.UTC().Format(time.RFC3339),
	}
}

type SnapshotView struct {
	TargetID      uint   `json:"target_id"`
	CapturedAt    string `json:"captured_at"`
	ContentDigest string `json:"content_digest"`
	Content       string `json:"content"`
}

func (view SnapshotView) From(entity *models.Snapshot) SnapshotView {
	return SnapshotView{
		TargetID:      entity.TargetID,
		CapturedAt:    entity.CapturedAt.UTC().Format(time.RFC3339),
		ContentDigest: entity.ContentDigest,
		Content:       entity.Content,
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func isoformat(t sql.NullTime) *string {
	if t.Valid {
		s := t.Time.UTC().Format(time.RFC3339)
		return &s
	}
	return nil
}
