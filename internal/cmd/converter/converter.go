// Package converter parses converter command flags and starts the
// conversion service.
package converter

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/davidvanstory/MultiplayerGame/internal/platform/cmd"
	converterapp "github.com/davidvanstory/MultiplayerGame/internal/services/converter/app"
)

// Config holds converter command configuration.
type Config struct {
	Port          int           `env:"MPG_CONVERTER_PORT" envDefault:"8090"`
	DBPath        string        `env:"MPG_CONVERTER_DB_PATH" envDefault:"data/converter.db"`
	GameDBPath    string        `env:"MPG_GAME_DB_PATH" envDefault:"data/game.db"`
	OpenAIKey     string        `env:"MPG_OPENAI_API_KEY"`
	OpenAIModel   string        `env:"MPG_OPENAI_MODEL"`
	OpenAIBaseURL string        `env:"MPG_OPENAI_BASE_URL"`
	PollInterval  time.Duration `env:"MPG_CONVERTER_POLL_INTERVAL" envDefault:"1s"`
	LeaseTTL      time.Duration `env:"MPG_CONVERTER_LEASE_TTL" envDefault:"5m"`
	MaxAttempts   int           `env:"MPG_CONVERTER_MAX_ATTEMPTS" envDefault:"3"`
	RetryBackoff  time.Duration `env:"MPG_CONVERTER_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay time.Duration `env:"MPG_CONVERTER_RETRY_MAX_DELAY" envDefault:"2m"`
	LLMRetries    int           `env:"MPG_CONVERTER_LLM_RETRIES" envDefault:"2"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The converter server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The converter SQLite database path")
	fs.StringVar(&cfg.GameDBPath, "game-db-path", cfg.GameDBPath, "The shared room SQLite database path")
	fs.StringVar(&cfg.OpenAIModel, "model", cfg.OpenAIModel, "Model name for document conversion")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Job queue poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Job lease duration")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum conversion attempts before failing a job")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.IntVar(&cfg.LLMRetries, "llm-retries", cfg.LLMRetries, "Model retries within one conversion attempt")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Runtime maps the command configuration onto the service runtime.
func (c Config) Runtime() converterapp.RuntimeConfig {
	return converterapp.RuntimeConfig{
		Port:          c.Port,
		DBPath:        c.DBPath,
		GameDBPath:    c.GameDBPath,
		OpenAIKey:     c.OpenAIKey,
		OpenAIModel:   c.OpenAIModel,
		OpenAIBaseURL: c.OpenAIBaseURL,
		PollInterval:  c.PollInterval,
		LeaseTTL:      c.LeaseTTL,
		MaxAttempts:   c.MaxAttempts,
		RetryBackoff:  c.RetryBackoff,
		RetryMaxDelay: c.RetryMaxDelay,
		LLMRetries:    c.LLMRetries,
	}
}

// Run starts the conversion service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceConverter, func(context.Context) error {
		return converterapp.Run(ctx, cfg.Runtime())
	})
}
