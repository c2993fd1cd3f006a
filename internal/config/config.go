package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone      = "UTC"
	defaultTopK          = 100
	defaultEmbeddingQPS  = 5
	defaultTimeoutSecs   = 30
	configPathEnv        = "CONSOLIDATOR_CONFIG"
	logLevelEnv          = "CONSOLIDATOR_LOG_LEVEL"
	databasePathEnv      = "DATABASE_PATH"
	chatEndpointEnv      = "CHAT_ENDPOINT"
	chatAPIKeyEnv        = "CHAT_API_KEY"
	chatModelEnv         = "CHAT_MODEL"
	embeddingEndpointEnv = "EMBEDDING_ENDPOINT"
	embeddingAPIKeyEnv   = "EMBEDDING_API_KEY"
	embeddingModelEnv    = "EMBEDDING_MODEL"
	embeddingQPSEnv      = "EMBEDDING_QPS"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Logging       LoggingConfig      `yaml:"logging"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Chat          ChatConfig         `yaml:"chat"`
	Embedding     EmbeddingConfig    `yaml:"embedding"`
	Query         QuerySettings      `yaml:"query"`
	Server        ServerConfig       `yaml:"server"`
	Feeds         []FeedConfig       `yaml:"feeds"`
}

// DatabaseConfig points to the local SQLite item store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SchedulerConfig defines how often feeds are refreshed.
type SchedulerConfig struct {
	RefreshInterval time.Duration  `yaml:"refreshInterval"`
	Timezone        string         `yaml:"timezone"`
	location        *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ChatConfig defines how to contact the chat-completion API.
type ChatConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// EmbeddingConfig describes the embedding provider. An empty endpoint disables the similarity stages.
type EmbeddingConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"apiKey"`
	QPS       int    `yaml:"qps"`
	BatchSize int    `yaml:"batchSize"`
}

// Configured reports whether any embedding setting was supplied.
func (e EmbeddingConfig) Configured() bool {
	return e.Endpoint != "" || e.APIKey != "" || e.Model != ""
}

// QuerySettings holds consolidation defaults.
type QuerySettings struct {
	TopK           int `yaml:"topk"`
	TimeRangeDays  int `yaml:"timeRangeDays"`
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// FeedConfig describes a single feed with its scanner strategy.
type FeedConfig struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Scanner string            `yaml:"scanner"`
	Options map[string]string `yaml:"options"`
}

// QueryConfig is the provider configuration captured by one query session.
type QueryConfig struct {
	Chat           ChatConfig
	Embedding      EmbeddingConfig
	TopK           int
	TimeoutSeconds int
}

// Timeout returns the per-call provider timeout.
func (q QueryConfig) Timeout() time.Duration {
	if q.TimeoutSeconds <= 0 {
		return defaultTimeoutSecs * time.Second
	}
	return time.Duration(q.TimeoutSeconds) * time.Second
}

// QueryConfig snapshots the provider settings for a new session.
func (c Config) QueryConfig() QueryConfig {
	return QueryConfig{
		Chat:           c.Chat,
		Embedding:      c.Embedding,
		TopK:           c.Query.TopK,
		TimeoutSeconds: c.Query.TimeoutSeconds,
	}
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.applyDefaults()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{logLevelEnv, &c.Logging.Level},
		{databasePathEnv, &c.Database.Path},
		{chatEndpointEnv, &c.Chat.Endpoint},
		{chatAPIKeyEnv, &c.Chat.APIKey},
		{chatModelEnv, &c.Chat.Model},
		{embeddingEndpointEnv, &c.Embedding.Endpoint},
		{embeddingAPIKeyEnv, &c.Embedding.APIKey},
		{embeddingModelEnv, &c.Embedding.Model},
		{telegramTokenEnv, &c.Notifications.Telegram.BotToken},
		{telegramChatIDEnv, &c.Notifications.Telegram.ChatID},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}

	if v := os.Getenv(embeddingQPSEnv); v != "" {
		if qps, err := strconv.Atoi(v); err == nil && qps > 0 {
			c.Embedding.QPS = qps
		} else {
			log.Printf("config: ignoring invalid %s=%q", embeddingQPSEnv, v)
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func (c *Config) applyDefaults() {
	if c.Query.TopK <= 0 {
		c.Query.TopK = defaultTopK
	}
	if c.Query.TimeoutSeconds <= 0 {
		c.Query.TimeoutSeconds = defaultTimeoutSecs
	}
	if c.Embedding.QPS <= 0 {
		c.Embedding.QPS = defaultEmbeddingQPS
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 1
	}
	for i := range c.Feeds {
		if c.Feeds[i].Scanner == "" {
			c.Feeds[i].Scanner = "rss"
		}
		if c.Feeds[i].ID == "" {
			c.Feeds[i].ID = c.Feeds[i].URL
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Scheduler.RefreshInterval > 0 {
		base.Scheduler.RefreshInterval = override.Scheduler.RefreshInterval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Chat.Endpoint != "" {
		base.Chat.Endpoint = override.Chat.Endpoint
	}
	if override.Chat.Model != "" {
		base.Chat.Model = override.Chat.Model
	}
	if override.Chat.APIKey != "" {
		base.Chat.APIKey = override.Chat.APIKey
	}

	// The embedding section is taken as a whole so that leaving it out disables embeddings.
	if override.Embedding.Configured() || override.Embedding.QPS > 0 || override.Embedding.BatchSize > 0 {
		base.Embedding = override.Embedding
	}

	if override.Query.TopK > 0 {
		base.Query.TopK = override.Query.TopK
	}
	if override.Query.TimeRangeDays > 0 {
		base.Query.TimeRangeDays = override.Query.TimeRangeDays
	}
	if override.Query.TimeoutSeconds > 0 {
		base.Query.TimeoutSeconds = override.Query.TimeoutSeconds
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if len(override.Feeds) > 0 {
		base.Feeds = override.Feeds
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database:  DatabaseConfig{Path: "consolidator.db"},
		Logging:   LoggingConfig{Level: "info"},
		Scheduler: SchedulerConfig{RefreshInterval: 30 * time.Minute, Timezone: defaultTimezone, location: tz},
		Chat: ChatConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
		},
		Query: QuerySettings{
			TopK:           defaultTopK,
			TimeRangeDays:  7,
			TimeoutSeconds: defaultTimeoutSecs,
		},
		Server: ServerConfig{Addr: "127.0.0.1:8787"},
	}
}
