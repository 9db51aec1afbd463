package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"8090"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Auth; empty disables the bearer check.
	APIKey string `envconfig:"API_KEY"`

	// Storage
	DataDir string `envconfig:"DATA_DIR" default:"./data"`

	// Question generation
	OpenAIAPIKey         string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL        string  `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel          string  `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	Temperature          float32 `envconfig:"LLM_TEMPERATURE" default:"0.1"`
	MaxTokens            int     `envconfig:"LLM_MAX_TOKENS" default:"4096"`
	PromptFile           string  `envconfig:"PROMPT_FILE"`
	LLMRequestsPerSecond float64 `envconfig:"LLM_REQUESTS_PER_SECOND" default:"2"`
	LLMBurst             int     `envconfig:"LLM_BURST" default:"2"`

	// SystemPrompt is read from PromptFile by Load.
	SystemPrompt string `ignored:"true"`

	// Concurrency
	MaxConcurrentGeneration int `envconfig:"MAX_CONCURRENT_GENERATION" default:"4"`

	// Fetching and uploads
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	FetchMaxBytes  int64         `envconfig:"FETCH_MAX_BYTES" default:"20971520"`
	UserAgent      string        `envconfig:"USER_AGENT" default:"docset/1.0 (dataset builder)"`
	WikipediaAPI   string        `envconfig:"WIKIPEDIA_API"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"52428800"`
	UploadTTL      time.Duration `envconfig:"UPLOAD_TTL" default:"1h"`

	// Cleaning and chunk filtering
	StripSections        []string `envconfig:"STRIP_SECTIONS" default:"See also,References,External links,Further reading,Bibliography,Notes,Citations,Sources,Footnotes"`
	EnableChunkFiltering bool     `envconfig:"ENABLE_CHUNK_FILTERING" default:"true"`
	MinChunkWords        int      `envconfig:"MIN_CHUNK_WORDS" default:"30"`

	// Run lifecycle and progress streaming
	RunGrace          time.Duration `envconfig:"RUN_GRACE" default:"10m"`
	StreamIdleTimeout time.Duration `envconfig:"STREAM_IDLE_TIMEOUT" default:"30m"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"1s"`
	SweepInterval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	StatsWindow       time.Duration `envconfig:"STATS_WINDOW" default:"1h"`

	// PDF
	PDFFallbackPdftotext bool `envconfig:"PDF_FALLBACK_PDFTOTEXT" default:"true"`
}

// Load reads an optional .env file, then DOCSET_-prefixed (or bare)
// environment variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DOCSET", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process config: %w", err)
	}
	if cfg.PromptFile != "" {
		data, err := os.ReadFile(cfg.PromptFile)
		if err != nil {
			return Config{}, fmt.Errorf("read prompt file: %w", err)
		}
		cfg.SystemPrompt = strings.TrimSpace(string(data))
	}
	return cfg, nil
}

// Validate checks bounds and, when requireLLM is set, that a model endpoint
// is configured.
func (c Config) Validate(requireLLM bool) error {
	var errs []error
	if requireLLM && c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR must not be empty"))
	}
	if c.MaxConcurrentGeneration < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_GENERATION must be >= 1, got %d", c.MaxConcurrentGeneration))
	}
	if c.MinChunkWords < 0 {
		errs = append(errs, fmt.Errorf("MIN_CHUNK_WORDS must be >= 0, got %d", c.MinChunkWords))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL must be positive"))
	}
	if c.RunGrace <= 0 || c.SweepInterval <= 0 {
		errs = append(errs, errors.New("RUN_GRACE and SWEEP_INTERVAL must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w.
func (c Config) NewLoggerTo(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
