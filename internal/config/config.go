package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// PathEnv names the variable holding the default config file path.
const PathEnv = "FINNEWS_CONFIG"

const envPrefix = "FINNEWS"

// dotenvCandidates are loaded in order when present; existing variables win.
var dotenvCandidates = []string{".env", "config/.env"}

// Config holds high-level settings required across the application.
type Config struct {
	Watchlist     []string           `yaml:"watchlist" envconfig:"WATCHLIST_SYMBOLS"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	News          NewsConfig         `yaml:"news"`
	AI            AIConfig           `yaml:"ai"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment"`
	Storage       StorageConfig      `yaml:"storage"`
	Alerts        AlertConfig        `yaml:"alerts"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// SchedulerConfig defines how often and how wide cycles run.
type SchedulerConfig struct {
	Interval         time.Duration `yaml:"interval" envconfig:"FETCH_INTERVAL" validate:"gt=0"`
	Lookback         time.Duration `yaml:"lookback" validate:"gt=0"`
	Overlap          time.Duration `yaml:"overlap" validate:"gte=0"`
	FetchConcurrency int           `yaml:"fetchConcurrency" validate:"min=1"`
	CycleTimeout     time.Duration `yaml:"cycleTimeout" validate:"gte=0"`
}

// NewsConfig describes the news provider.
type NewsConfig struct {
	Provider          string        `yaml:"provider" validate:"oneof=newsapi"`
	Endpoint          string        `yaml:"endpoint" validate:"required,url"`
	APIKey            string        `yaml:"apiKey" envconfig:"NEWS_API_KEY" validate:"required"`
	Language          string        `yaml:"language"`
	PageSize          int           `yaml:"pageSize" validate:"min=1,max=100"`
	MaxPages          int           `yaml:"maxPages" validate:"min=1"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" validate:"gt=0"`
	Identity          string        `yaml:"identity" validate:"oneof=url hash"`
}

// AIConfig defines how to contact the enrichment model.
type AIConfig struct {
	Provider          string        `yaml:"provider" envconfig:"LLM_PROVIDER" validate:"oneof=gemini claude openai http"`
	Model             string        `yaml:"model" envconfig:"LLM_MODEL_NAME" validate:"required"`
	APIKey            string        `yaml:"apiKey" envconfig:"LLM_API_KEY" validate:"required_unless=Provider http"`
	Endpoint          string        `yaml:"endpoint" envconfig:"LLM_ENDPOINT" validate:"required_if=Provider http,omitempty,url"`
	Temperature       float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int           `yaml:"maxTokens" validate:"min=1"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerMinute int           `yaml:"requestsPerMinute" validate:"gte=0"`
	SystemPrompt      string        `yaml:"systemPrompt"`
}

// EnrichmentConfig bounds concurrency and retries of AI calls.
type EnrichmentConfig struct {
	Concurrency    int           `yaml:"concurrency" validate:"min=1"`
	MaxAttempts    int           `yaml:"maxAttempts" validate:"min=1,max=10"`
	InitialBackoff time.Duration `yaml:"initialBackoff" validate:"gte=0"`
	MaxBackoff     time.Duration `yaml:"maxBackoff" validate:"gte=0"`
	Multiplier     float64       `yaml:"multiplier" validate:"gte=1"`
}

// StorageConfig locates the record stream and the optional seen store.
type StorageConfig struct {
	RecordsPath string     `yaml:"recordsPath" envconfig:"RECORDS_PATH" validate:"required"`
	Seen        SeenConfig `yaml:"seen"`
}

// SeenConfig selects a dedup backend. Retention of zero keeps identities forever.
type SeenConfig struct {
	Backend     string        `yaml:"backend" validate:"oneof=memory badger postgres redis"`
	BadgerPath  string        `yaml:"badgerPath" validate:"required_if=Backend badger"`
	PostgresDSN string        `yaml:"postgresDsn" envconfig:"DATABASE_DSN" validate:"required_if=Backend postgres"`
	RedisURL    string        `yaml:"redisUrl" envconfig:"REDIS_URL" validate:"required_if=Backend redis"`
	RedisKey    string        `yaml:"redisKey"`
	Retention   time.Duration `yaml:"retention" validate:"gte=0"`
}

// AlertConfig holds alert thresholds and dispatch limits.
type AlertConfig struct {
	HighImpactThreshold float64       `yaml:"highImpactThreshold" validate:"gte=0,lte=100"`
	ShiftDelta          float64       `yaml:"shiftDelta" validate:"gt=0,lte=2"`
	BaselineWindow      int           `yaml:"baselineWindow" validate:"min=1"`
	MinBaselineSamples  int           `yaml:"minBaselineSamples" validate:"min=1"`
	Timeout             time.Duration `yaml:"timeout" validate:"gt=0"`
	QueueSize           int           `yaml:"queueSize" validate:"min=1"`
}

// NotificationConfig encapsulates outbound channels (Slack, Telegram).
type NotificationConfig struct {
	Slack    SlackConfig    `yaml:"slack"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// SlackConfig holds the incoming webhook URL.
type SlackConfig struct {
	WebhookURL string `yaml:"webhookUrl" envconfig:"SLACK_WEBHOOK_URL" validate:"omitempty,url"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken" envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `yaml:"chatId" envconfig:"TELEGRAM_CHAT_ID" validate:"required_with=BotToken"`
}

// LoggingConfig controls log verbosity and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT" validate:"oneof=console json"`
}

// LoadFrom layers defaults, the YAML file at path (optional), .env files and
// environment variables, then validates the result.
func LoadFrom(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := loadDotenv(); err != nil {
		return Config{}, err
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if len(c.Watchlist) == 0 {
		return errors.New("invalid config: watchlist is empty")
	}

	if c.Enrichment.MaxBackoff > 0 && c.Enrichment.MaxBackoff < c.Enrichment.InitialBackoff {
		return errors.New("invalid config: enrichment.maxBackoff is below enrichment.initialBackoff")
	}

	// Pruned identities must be older than anything a fetch can still return.
	if r := c.Storage.Seen.Retention; r > 0 && r <= c.Scheduler.Lookback+c.Scheduler.Overlap {
		return fmt.Errorf("invalid config: storage.seen.retention %s must exceed lookback+overlap %s",
			r, c.Scheduler.Lookback+c.Scheduler.Overlap)
	}

	return nil
}

func loadDotenv() error {
	for _, candidate := range dotenvCandidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load %s: %w", candidate, err)
		}
	}
	return nil
}

// Default returns the built-in configuration before any file or env layer.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{
			Interval:         15 * time.Minute,
			Lookback:         24 * time.Hour,
			Overlap:          10 * time.Minute,
			FetchConcurrency: 4,
			CycleTimeout:     10 * time.Minute,
		},
		News: NewsConfig{
			Provider:          "newsapi",
			Endpoint:          "https://newsapi.org/v2/everything",
			Language:          "en",
			PageSize:          20,
			MaxPages:          1,
			Timeout:           20 * time.Second,
			RequestsPerSecond: 1,
			Identity:          "url",
		},
		AI: AIConfig{
			Provider:          "gemini",
			Model:             "gemini-2.0-flash",
			Temperature:       0.2,
			MaxTokens:         1024,
			Timeout:           30 * time.Second,
			RequestsPerMinute: 60,
		},
		Enrichment: EnrichmentConfig{
			Concurrency:    5,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2,
		},
		Storage: StorageConfig{
			RecordsPath: "data/processed_news.jsonl",
			Seen: SeenConfig{
				Backend:  "memory",
				RedisKey: "finnews:seen",
			},
		},
		Alerts: AlertConfig{
			HighImpactThreshold: 70,
			ShiftDelta:          1.0,
			BaselineWindow:      10,
			MinBaselineSamples:  3,
			Timeout:             10 * time.Second,
			QueueSize:           64,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}
