package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Checkpoint backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Server       ServerConfig
	Slack        SlackConfig
	LLM          LLMConfig
	Conversation ConversationConfig
	Checkpoint   CheckpointConfig
	AWS          AWSConfig
	Admin        AdminConfig
	Log          LogConfig
	SelfHosted   bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
	Migrate  bool
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // G117: JWT signing secret config
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// SlackConfig holds Slack escalation settings.
type SlackConfig struct {
	BotToken          string
	SigningSecret     string
	EscalationChannel string
	EscalationTimeout time.Duration
}

// LLMConfig holds model access settings. APIKeyParam, when set, names an SSM
// parameter that replaces APIKey at startup.
type LLMConfig struct {
	APIKey      string //nolint:gosec // G117: LLM API key config
	APIKeyParam string
	BaseURL     string
	Model       string
	MaxAttempts int
	CallTimeout time.Duration
}

// ConversationConfig tunes the conversation engine.
type ConversationConfig struct {
	MaxTransitions        int
	IrregularityThreshold int
	PromptsFile           string
}

// CheckpointConfig selects where thread state is stored.
type CheckpointConfig struct {
	Backend       string
	SQLitePath    string
	DynamoDBTable string
}

// AWSConfig holds the region used for DynamoDB and SSM.
type AWSConfig struct {
	Region string
}

// AdminConfig holds the bootstrap administrator API key.
type AdminConfig struct {
	APIKey      string //nolint:gosec // G117: admin API key config
	APIKeyParam string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password, LLM key) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("SKILLMATRIX_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("SKILLMATRIX_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMigrate, err := getEnvBool("SKILLMATRIX_DB_MIGRATE", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("SKILLMATRIX_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("SKILLMATRIX_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	refreshTTL, err := getEnvDuration("SKILLMATRIX_JWT_REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("SKILLMATRIX_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("SKILLMATRIX_SERVER_WRITE_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	escalationTimeout, err := getEnvDuration("SKILLMATRIX_SLACK_ESCALATION_TIMEOUT", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	llmMaxAttempts, err := getEnvInt("SKILLMATRIX_LLM_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	llmCallTimeout, err := getEnvDuration("SKILLMATRIX_LLM_CALL_TIMEOUT", 45*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxTransitions, err := getEnvInt("SKILLMATRIX_MAX_TRANSITIONS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	threshold, err := getEnvInt("SKILLMATRIX_IRREGULARITY_THRESHOLD", 3)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("SKILLMATRIX_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("SKILLMATRIX_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("SKILLMATRIX_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("SKILLMATRIX_DB_USER", "skillmatrix"),
			Password: getEnv("SKILLMATRIX_DB_PASSWORD", ""),
			DBName:   getEnv("SKILLMATRIX_DB_NAME", "skillmatrix_dev"),
			SSLMode:  getEnv("SKILLMATRIX_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
			Migrate:  dbMigrate,
		},
		Redis: RedisConfig{
			Addr:     getEnv("SKILLMATRIX_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("SKILLMATRIX_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:     getEnv("SKILLMATRIX_JWT_SECRET", ""),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		Server: ServerConfig{
			Addr:         getEnv("SKILLMATRIX_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Slack: SlackConfig{
			BotToken:          getEnv("SKILLMATRIX_SLACK_BOT_TOKEN", ""),
			SigningSecret:     getEnv("SKILLMATRIX_SLACK_SIGNING_SECRET", ""),
			EscalationChannel: getEnv("SKILLMATRIX_SLACK_ESCALATION_CHANNEL", ""),
			EscalationTimeout: escalationTimeout,
		},
		LLM: LLMConfig{
			APIKey:      getEnv("SKILLMATRIX_LLM_API_KEY", ""),
			APIKeyParam: getEnv("SKILLMATRIX_LLM_API_KEY_PARAM", ""),
			BaseURL:     getEnv("SKILLMATRIX_LLM_BASE_URL", ""),
			Model:       getEnv("SKILLMATRIX_LLM_MODEL", "gpt-4o-mini"),
			MaxAttempts: llmMaxAttempts,
			CallTimeout: llmCallTimeout,
		},
		Conversation: ConversationConfig{
			MaxTransitions:        maxTransitions,
			IrregularityThreshold: threshold,
			PromptsFile:           getEnv("SKILLMATRIX_PROMPTS_FILE", ""),
		},
		Checkpoint: CheckpointConfig{
			Backend:       strings.ToLower(getEnv("SKILLMATRIX_CHECKPOINT_BACKEND", BackendPostgres)),
			SQLitePath:    getEnv("SKILLMATRIX_SQLITE_PATH", "skillmatrix.db"),
			DynamoDBTable: getEnv("SKILLMATRIX_DYNAMODB_TABLE", ""),
		},
		AWS: AWSConfig{
			Region: getEnv("SKILLMATRIX_AWS_REGION", ""),
		},
		Admin: AdminConfig{
			APIKey:      getEnv("SKILLMATRIX_ADMIN_API_KEY", ""),
			APIKeyParam: getEnv("SKILLMATRIX_ADMIN_API_KEY_PARAM", ""),
		},
		Log: LogConfig{
			Level:  getEnv("SKILLMATRIX_LOG_LEVEL", "info"),
			Format: getEnv("SKILLMATRIX_LOG_FORMAT", "json"),
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("SKILLMATRIX_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("SKILLMATRIX_JWT_SECRET must be at least 32 characters")
	}
	if c.LLM.APIKey == "" && c.LLM.APIKeyParam == "" {
		return errors.New("SKILLMATRIX_LLM_API_KEY or SKILLMATRIX_LLM_API_KEY_PARAM is required")
	}

	// DB SSL mode warning for non-self-hosted deployments.
	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("SKILLMATRIX_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("SKILLMATRIX_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("SKILLMATRIX_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("SKILLMATRIX_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("SKILLMATRIX_JWT_REFRESH_TTL must be positive, got %s", c.JWT.RefreshTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("SKILLMATRIX_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("SKILLMATRIX_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Slack.EscalationTimeout <= 0 {
		return fmt.Errorf("SKILLMATRIX_SLACK_ESCALATION_TIMEOUT must be positive, got %s", c.Slack.EscalationTimeout)
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("SKILLMATRIX_LLM_MAX_ATTEMPTS must be >= 1, got %d", c.LLM.MaxAttempts)
	}
	if c.LLM.CallTimeout < 0 {
		return fmt.Errorf("SKILLMATRIX_LLM_CALL_TIMEOUT must not be negative, got %s", c.LLM.CallTimeout)
	}
	if c.Conversation.MaxTransitions < 1 {
		return fmt.Errorf("SKILLMATRIX_MAX_TRANSITIONS must be >= 1, got %d", c.Conversation.MaxTransitions)
	}
	if c.Conversation.IrregularityThreshold < 1 {
		return fmt.Errorf("SKILLMATRIX_IRREGULARITY_THRESHOLD must be >= 1, got %d", c.Conversation.IrregularityThreshold)
	}

	backends := []string{BackendPostgres, BackendSQLite, BackendDynamoDB, BackendMemory}
	if !slices.Contains(backends, c.Checkpoint.Backend) {
		return fmt.Errorf("SKILLMATRIX_CHECKPOINT_BACKEND must be one of %s, got %q", strings.Join(backends, "|"), c.Checkpoint.Backend)
	}
	if c.Checkpoint.Backend == BackendDynamoDB && c.Checkpoint.DynamoDBTable == "" {
		return errors.New("SKILLMATRIX_DYNAMODB_TABLE is required for the dynamodb checkpoint backend")
	}
	if c.Checkpoint.Backend == BackendSQLite && c.Checkpoint.SQLitePath == "" {
		return errors.New("SKILLMATRIX_SQLITE_PATH is required for the sqlite checkpoint backend")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("SKILLMATRIX_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	return nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.Checkpoint.Backend == BackendDynamoDB || c.LLM.APIKeyParam != "" || c.Admin.APIKeyParam != ""
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
