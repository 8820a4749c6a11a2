package main

import (
	"net/http"
	"os"
	"time"

	"github.com/regwatch/regwatch/app"
	"github.com/regwatch/regwatch/config"
	"github.com/regwatch/regwatch/lib"
	"github.com/regwatch/regwatch/lib/classifier"
	"github.com/regwatch/regwatch/lib/differ"
	"github.com/regwatch/regwatch/lib/dispatcher"
	"github.com/regwatch/regwatch/lib/fetcher"
	"github.com/regwatch/regwatch/lib/scheduler"
	"github.com/regwatch/regwatch/lib/session"
	"github.com/regwatch/regwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func NewSchedulePolicy(cfg *config.Config) scheduler.SchedulePolicy {
	return scheduler.PolicyFromConfig(cfg)
}

func main() {
	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),
		fx.Provide(NewSchedulePolicy),
		fx.Provide(scheduler.NewScheduler),
		fx.Provide(session.NewManager),
		fx.Provide(differ.NewEngine),
		fx.Provide(classifier.NewClassifier),
		fx.Provide(fetcher.NewFetcher),
		fx.Provide(dispatcher.NewDispatcher),
		fx.Provide(lib.NewService),
		fx.Provide(app.NewHTTPServer),

		fx.Invoke(func(*dispatcher.Dispatcher) {}),
		fx.Invoke(func(*http.Server) {}),
	).Run()
}
