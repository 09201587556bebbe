package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Debug     bool   `env:"DEBUG, default=false"`
	SentryDSN string `env:"SENTRY_DSN"` // Errors are reported to sentry when set
}

type Logger struct {
	*zap.Logger
	sentry *sentry.Client
}

func New(cfg Config) (*Logger, error) {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder

	defaultEncoder := zapcore.NewConsoleEncoder(config)
	defaultLogLevel := zapcore.DebugLevel

	if !cfg.Debug {
		defaultLogLevel = zapcore.InfoLevel
		defaultEncoder = zapcore.NewJSONEncoder(config)
	}

	core := zapcore.NewCore(defaultEncoder, zapcore.AddSync(os.Stderr), defaultLogLevel)
	l := &Logger{
		Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
	}

	if cfg.SentryDSN == "" {
		return l, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:   cfg.SentryDSN,
		Debug: cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry new client: %w", err)
	}

	sentryCore, err := zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
	}, zapsentry.NewSentryClientFromClient(client))
	if err != nil {
		return nil, fmt.Errorf("zapsentry new core: %w", err)
	}

	l.Logger = zapsentry.AttachCoreToLogger(sentryCore, l.Logger)
	l.sentry = client
	return l, nil
}

// Flush syncs the zap core and waits for buffered sentry events.
func (l *Logger) Flush(timeout time.Duration) {
	_ = l.Sync()
	if l.sentry != nil {
		l.sentry.Flush(timeout)
	}
}
