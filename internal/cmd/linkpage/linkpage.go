// Package linkpage parses linkpage command flags and runs its subcommands.
package linkpage

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	entrypoint "github.com/louisbranch/linkpage/internal/platform/cmd"
	"github.com/louisbranch/linkpage/internal/platform/timeouts"
)

// Config holds linkpage command configuration.
type Config struct {
	BaseURL         string        `env:"LINKPAGE_BASE_URL" envDefault:"http://localhost:8000"`
	GraphQLPath     string        `env:"LINKPAGE_GRAPHQL_PATH" envDefault:"/graphql"`
	CredentialsPath string        `env:"LINKPAGE_CREDENTIALS_PATH" envDefault:"data/linkpage.db"`
	Locale          string        `env:"LINKPAGE_LOCALE" envDefault:"en-US"`
	RequestTimeout  time.Duration `env:"LINKPAGE_REQUEST_TIMEOUT" envDefault:"10s"`
	Retries         int           `env:"LINKPAGE_RETRIES" envDefault:"2"`
	RetryDelay      time.Duration `env:"LINKPAGE_RETRY_DELAY" envDefault:"1s"`
	LogLevel        string        `env:"LINKPAGE_LOG_LEVEL" envDefault:"warn"`
	OTelEndpoint    string        `env:"LINKPAGE_OTEL_ENDPOINT"`

	// Command is the subcommand name; Args are its arguments.
	Command string
	Args    []string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "The backend base URL")
	fs.StringVar(&cfg.GraphQLPath, "graphql-path", cfg.GraphQLPath, "The GraphQL endpoint path")
	fs.StringVar(&cfg.CredentialsPath, "credentials", cfg.CredentialsPath, "The SQLite credentials database path")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Locale of fallback messages (en-US, ko-KR)")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Timeout of each HTTP attempt")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Additional attempts after a server failure")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Wait between attempts")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP HTTP endpoint; empty disables tracing")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Retries < 0 {
		return Config{}, errors.New("-retries must be >= 0")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = timeouts.HTTPRequest
	}
	cfg.Command = "status"
	if fs.NArg() > 0 {
		cfg.Command = strings.ToLower(fs.Arg(0))
		cfg.Args = fs.Args()[1:]
	}
	return cfg, nil
}

// NewLogger builds the production logger at level.
func NewLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parsed)
	config.DisableStacktrace = true
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Run executes the configured subcommand, writing results to out.
func Run(ctx context.Context, cfg Config, out io.Writer, logger *zap.Logger) error {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	options := entrypoint.RunOptions{OTelEndpoint: cfg.OTelEndpoint, Logger: logger}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLinkpage, options, func(ctx context.Context) error {
		app, err := newApp(ctx, cfg, out, logger)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.dispatch(ctx, cfg.Command, cfg.Args)
	})
}
