package classifier

import (
	"context"
	"time"

	"github.com/regwatch/regwatch/config"
	"github.com/regwatch/regwatch/lib/differ"
	"github.com/regwatch/regwatch/lib/models"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Classifier decides whether a content diff is compliance-meaningful.
// The model proposes a significance score; the threshold policy that turns
// the score into a verdict is owned here, not delegated.
type Classifier interface {
	Classify(ctx context.Context, target *models.Target, diff *differ.Result) (*models.ChangeAnalysis, error)
}

type openAIClassifier struct {
	log       *zap.Logger
	client    *openai.Client
	model     string
	threshold int
	timeout   time.Duration
}

func NewClassifier(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) Classifier {
	clientCfg := openai.DefaultConfig(cfg.Classifier.APIKey)
	if cfg.Classifier.BaseURL != "" {
		clientCfg.BaseURL = cfg.Classifier.BaseURL
	}

	return &openAIClassifier{
		log:       log,
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Classifier.Model,
		threshold: cfg.Classifier.ScoreThreshold,
		timeout:   cfg.Monitor.ClassifyTimeout,
	}
}

func (c *openAIClassifier) Classify(ctx context.Context, target *models.Target, diff *differ.Result) (*models.ChangeAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(target, diff)},
		},
	})
	if err != nil {
		return nil, err
	}

	var raw string
	if len(resp.Choices) > 0 {
		raw = resp.Choices[0].Message.Content
	}
	if raw == "" {
		c.log.Sugar().Warnf("Classifier returned an empty completion for target id:%v", target.ID)
	}

	v := parseVerdict(raw)
	if v.fallback {
		c.log.Sugar().Warnw("Unparseable classifier response, flagging for manual review",
			"target_id", target.ID, "raw", truncate(raw, 200))
	}

	return &models.ChangeAnalysis{
		TargetID:   target.ID,
		Score:      v.Score,
		Meaningful: c.meaningful(v),
		Reasoning:  v.Reasoning,
		Model:      c.model,
		AnalyzedAt: time.Now().UTC(),
	}, nil
}

// meaningful re-derives the verdict from the score so the threshold policy
// stays locally auditable. The model's own isMeaningful field is ignored.
// A fallback verdict is always surfaced for manual review.
func (c *openAIClassifier) meaningful(v verdict) bool {
	if v.fallback {
		return true
	}
	return v.Score >= c.threshold
}
