package senders

import (
	"context"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/google/uuid"
	"github.com/regwatch/regwatch/lib/models"
)

type webhookSender struct {
	base
}

type webhookPayload struct {
	DeliveryID string    `json:"delivery_id"`
	TargetID   uint      `json:"target_id"`
	TargetName string    `json:"target_name"`
	URL        string    `json:"url"`
	Score      int       `json:"score"`
	Reasoning  string    `json:"reasoning"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

func (w *webhookSender) SendChangeAlert(ctx context.Context, target *models.Target, analysis *models.ChangeAnalysis) (string, error) {
	deliveryID := uuid.NewString()
	payload := webhookPayload{
		DeliveryID: deliveryID,
		TargetID:   target.ID,
		TargetName: target.Name,
		URL:        target.URL,
		Score:      analysis.Score,
		Reasoning:  analysis.Reasoning,
		AnalyzedAt: analysis.AnalyzedAt,
	}

	timeout := time.Duration(w.cfg.Webhook.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := requests.URL(w.cfg.Webhook.URL).
		Transport(w.transport).
		Header("X-Delivery-ID", deliveryID).
		BodyJSON(&payload).
		Fetch(ctx)
	return deliveryID, err
}
