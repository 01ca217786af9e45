package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"dataanalyst/pkg/errors"
)

// Query backends
const (
	BackendMCP      = "mcp"
	BackendBigQuery = "bigquery"
)

type Config struct {
	App           AppConfig
	Google        GoogleConfig
	Query         QueryConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	RateLimit     RateLimitConfig
	ErrorTracking ErrorTrackingConfig
	Log           LogConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"data_analyst"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// GoogleConfig holds the cloud project and model settings shared by the agent,
// the API registry lookup and the instruction text.
type GoogleConfig struct {
	ProjectID           string  `envconfig:"GOOGLE_CLOUD_PROJECT" required:"true"`
	Location            string  `envconfig:"GOOGLE_CLOUD_LOCATION" default:"us-central1"`
	UseVertexAI         bool    `envconfig:"GOOGLE_GENAI_USE_VERTEXAI" default:"false"`
	APIKey              string  `envconfig:"GOOGLE_API_KEY"`
	Model               string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	Temperature         float32 `envconfig:"AGENT_TEMPERATURE" default:"0"`
	Dataset             string  `envconfig:"BIGQUERY_DATASET" default:"test_chat_bot"`
	MCPServerID         string  `envconfig:"MCP_SERVER_ID" default:"google-bigquery.googleapis.com-mcp"`
	APIRegistryEndpoint string  `envconfig:"API_REGISTRY_ENDPOINT" default:"https://cloudapiregistry.googleapis.com"`
}

// MCPServerName returns the fully-qualified remote tool resource name.
func (c GoogleConfig) MCPServerName() string {
	return fmt.Sprintf("projects/%s/locations/global/mcpServers/%s", c.ProjectID, c.MCPServerID)
}

type QueryConfig struct {
	Backend         string        `envconfig:"QUERY_BACKEND" default:"mcp"`
	Timeout         time.Duration `envconfig:"QUERY_TIMEOUT" default:"60s"`
	ReadOnly        bool          `envconfig:"QUERY_READ_ONLY" default:"true"`
	MaxRows         int           `envconfig:"QUERY_MAX_ROWS" default:"1000"`
	AllowedTools    []string      `envconfig:"QUERY_ALLOWED_TOOLS"`
	QuestionTimeout time.Duration `envconfig:"QUESTION_TIMEOUT" default:"3m"`
}

type HTTPConfig struct {
	Port int `envconfig:"HTTP_PORT" default:"8080"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"data_analyst"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) Enabled() bool { return c.Host != "" }

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"analytics"`
}

func (c ClickHouseConfig) Enabled() bool { return c.Host != "" }

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Enabled() bool { return c.Host != "" }

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers        []string `envconfig:"KAFKA_BROKERS"`
	ToolCallsTopic string   `envconfig:"KAFKA_TOOL_CALLS_TOPIC" default:"analyst.tool_calls"`
	GroupID        string   `envconfig:"KAFKA_GROUP_ID" default:"data-analyst"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	Debug    bool   `envconfig:"TELEGRAM_DEBUG" default:"false"`
}

func (c TelegramConfig) Enabled() bool { return c.BotToken != "" }

// RateLimitConfig limits questions per user
type RateLimitConfig struct {
	QuestionsPerMinute float64 `envconfig:"RATE_LIMIT_QUESTIONS_PER_MINUTE" default:"20"`
	Burst              int     `envconfig:"RATE_LIMIT_BURST" default:"5"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type LogConfig struct {
	File       string `envconfig:"LOG_FILE"`
	MaxSizeMB  int    `envconfig:"LOG_FILE_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `envconfig:"LOG_FILE_MAX_BACKUPS" default:"5"`
	MaxAgeDays int    `envconfig:"LOG_FILE_MAX_AGE_DAYS" default:"14"`
	Compress   bool   `envconfig:"LOG_FILE_COMPRESS" default:"true"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	c.Query.Backend = strings.ToLower(strings.TrimSpace(c.Query.Backend))
	switch c.Query.Backend {
	case BackendMCP, BackendBigQuery:
	default:
		return errors.NewValidationError("QUERY_BACKEND", "must be mcp or bigquery", c.Query.Backend)
	}

	if strings.TrimSpace(c.Google.ProjectID) == "" {
		return errors.NewValidationError("GOOGLE_CLOUD_PROJECT", "must not be blank", c.Google.ProjectID)
	}

	if !c.Google.UseVertexAI && c.Google.APIKey == "" {
		return errors.NewValidationError("GOOGLE_API_KEY", "required unless GOOGLE_GENAI_USE_VERTEXAI is set", "")
	}

	if c.Query.Timeout <= 0 {
		return errors.NewValidationError("QUERY_TIMEOUT", "must be positive", c.Query.Timeout)
	}

	return nil
}
