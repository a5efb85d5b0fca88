// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration for both the engine worker
// process and the API/broadcaster process.
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	LLM      LLMConfig
	Engine   EngineConfig
}

// ServiceConfig holds process-wide settings.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings for the ledger store.
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings, used by the queue adapter
// and the EventBus's cross-process pub/sub implementation.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// QueueConfig selects and sizes the job queue backend.
type QueueConfig struct {
	Type string // "memory" or "redis"
}

// LLMConfig configures the LLM client used by agent/guardrails/cognitive handlers.
type LLMConfig struct {
	Provider   string // "anthropic" or "stub"
	Model      string
	APIKeyEnv  string
	Timeout    time.Duration
	MaxRetries int
}

// EngineConfig bounds the execution engine's resource usage (§5).
type EngineConfig struct {
	WorkerPoolSize       int
	NodeTimeout          time.Duration
	MaxToolCallLoop      int
	MaxCognitiveNodes    int
	ToolCallTimeout      time.Duration
	ToolCallMaxRetries   int
}

// Load loads configuration from environment variables, applying defaults.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "flowengine"),
			User:        getEnv("POSTGRES_USER", "flowengine"),
			Password:    getEnv("POSTGRES_PASSWORD", "flowengine"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 4),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Queue: QueueConfig{
			Type: getEnv("QUEUE_TYPE", "memory"),
		},
		LLM: LLMConfig{
			Provider:   getEnv("LLM_PROVIDER", "stub"),
			Model:      getEnv("LLM_MODEL", "claude-sonnet-4-5-20250929"),
			APIKeyEnv:  getEnv("LLM_API_KEY_ENV", "ANTHROPIC_API_KEY"),
			Timeout:    getEnvDuration("LLM_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvInt("LLM_MAX_RETRIES", 3),
		},
		Engine: EngineConfig{
			WorkerPoolSize:     getEnvInt("ENGINE_WORKER_POOL_SIZE", 4),
			NodeTimeout:        getEnvDuration("ENGINE_NODE_TIMEOUT", 5*time.Minute),
			MaxToolCallLoop:    getEnvInt("ENGINE_MAX_TOOL_CALL_LOOP", 8),
			MaxCognitiveNodes:  getEnvInt("ENGINE_MAX_COGNITIVE_NODES", 20),
			ToolCallTimeout:    getEnvDuration("ENGINE_TOOL_CALL_TIMEOUT", 30*time.Second),
			ToolCallMaxRetries: getEnvInt("ENGINE_TOOL_CALL_MAX_RETRIES", 3),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks invariants that must hold before the process starts.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("postgres max_conns must be >= min_conns")
	}
	if c.Engine.MaxToolCallLoop < 1 {
		return fmt.Errorf("engine max tool call loop must be >= 1")
	}
	if c.Engine.MaxCognitiveNodes < 1 {
		return fmt.Errorf("engine max cognitive nodes must be >= 1")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
