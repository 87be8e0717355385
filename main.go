package main

import (
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/venlark/itemwatch/app"
	"github.com/venlark/itemwatch/config"
	"github.com/venlark/itemwatch/lib"
	"github.com/venlark/itemwatch/lib/catalog"
	"github.com/venlark/itemwatch/lib/scheduler"
	"github.com/venlark/itemwatch/senders"
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

func main() {
	godotenv.Load()

	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),
		fx.Provide(lib.NewStore),
		fx.Provide(catalog.NewClient),
		fx.Provide(catalog.NewSource),
		fx.Provide(scheduler.NewScheduler),
		fx.Provide(lib.NewService),
		fx.Provide(app.NewAPI),

		fx.Provide(func(s *lib.Store) catalog.ItemCache { return s }),
		fx.Provide(func(s *lib.Store) scheduler.Store { return s }),
		fx.Provide(func(src *catalog.Source) scheduler.Catalog { return src }),
		fx.Provide(func(r senders.Registry) scheduler.Notifier { return r }),

		fx.Invoke(func(*scheduler.Scheduler) {}),
		fx.Invoke(func(*http.Server) {}),
	).Run()
}
