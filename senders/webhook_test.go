package senders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/regwatch/regwatch/config"
	"github.com/regwatch/regwatch/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookSendChangeAlert(t *testing.T) {
	var received webhookPayload
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Delivery-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Webhook.URL = srv.URL
	cfg.Webhook.TimeoutSecs = 5

	sender := &webhookSender{base{zap.NewNop(), cfg, http.DefaultTransport}}
	target := &models.Target{Name: "State wage rules", URL: "https://example.gov/wages"}
	target.ID = 7
	analysis := &models.ChangeAnalysis{Score: 85, Reasoning: "New deadline added", AnalyzedAt: time.Now().UTC()}

	id, err := sender.SendChangeAlert(context.Background(), target, analysis)

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, header)
	assert.Equal(t, id, received.DeliveryID)
	assert.EqualValues(t, 7, received.TargetID)
	assert.Equal(t, 85, received.Score)
}
