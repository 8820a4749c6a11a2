package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerDNS      string `env:"SERVER_DNS" envDefault:"http://localhost:8080"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"regwatch.sqlite"`

	Monitor struct {
		TickInterval    time.Duration `env:"MONITOR_TICK_INTERVAL" envDefault:"5m"`
		FetchTimeout    time.Duration `env:"MONITOR_FETCH_TIMEOUT" envDefault:"60s"`
		ClassifyTimeout time.Duration `env:"MONITOR_CLASSIFY_TIMEOUT" envDefault:"90s"`
		SnapshotTTL     time.Duration `env:"MONITOR_SNAPSHOT_TTL" envDefault:"2160h"` // snapshot history retention
	}

	Scheduler struct {
		BackoffFactor float64 `env:"SCHEDULER_BACKOFF_FACTOR" envDefault:"2"`
		BackoffCap    float64 `env:"SCHEDULER_BACKOFF_CAP" envDefault:"16"`

		// Base check intervals per priority tier, in minutes.
		CriticalMinutes int `env:"SCHEDULER_CRITICAL_MINUTES" envDefault:"360"`
		HighMinutes     int `env:"SCHEDULER_HIGH_MINUTES" envDefault:"720"`
		MediumMinutes   int `env:"SCHEDULER_MEDIUM_MINUTES" envDefault:"1440"`
		LowMinutes      int `env:"SCHEDULER_LOW_MINUTES" envDefault:"4320"`
		TestingMinutes  int `env:"SCHEDULER_TESTING_MINUTES" envDefault:"5"`
	}

	Classifier struct {
		APIKey         string `env:"CLASSIFIER_API_KEY"`
		BaseURL        string `env:"CLASSIFIER_BASE_URL"`
		Model          string `env:"CLASSIFIER_MODEL" envDefault:"gpt-4o-mini"`
		ScoreThreshold int    `env:"CLASSIFIER_SCORE_THRESHOLD" envDefault:"70"`
	}

	Scrape struct {
		Endpoint string `env:"SCRAPE_ENDPOINT"` // if empty, pages are fetched directly
		APIKey   string `env:"SCRAPE_API_KEY"`
	}

	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM"`
		Recipients  string `env:"MAILGUN_RECIPIENTS"` // comma-separated
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	Webhook struct {
		URL         string `env:"WEBHOOK_URL"`
		TimeoutSecs int    `env:"WEBHOOK_TIMEOUT_SECS" envDefault:"10"`
	}

	log   *zap.Logger
	creds map[string]string
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	if err := env.Parse(cfg); err != nil {
		log.Sugar().Panic(err)
	}

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.Env != "production" {
			cfg.log.Sugar().Infof("%s (credentials will be set to default outside production)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			cfg.log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

func (cfg *Config) MailRecipients() []string {
	if cfg.Mailgun.Recipients == "" {
		return nil
	}
	parts := strings.Split(cfg.Mailgun.Recipients, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
