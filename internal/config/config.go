// Package config provides unified configuration loading for the assistant engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the assistant engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	AI            AIConfig            `yaml:"ai"`
	Assistant     AssistantConfig     `yaml:"assistant"`
	Escalation    EscalationConfig    `yaml:"escalation"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	// AdminToken protects the /api/v1/admin routes. Empty disables them.
	AdminToken     string   `yaml:"admin_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AIConfig holds generative AI provider settings.
type AIConfig struct {
	Provider           string        `yaml:"provider"` // gemini or none
	Model              string        `yaml:"model"`
	APIKey             string        `yaml:"api_key"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxTokens          int           `yaml:"max_tokens"`
	Temperature        float64       `yaml:"temperature"`
	MaxCallsPerSession int           `yaml:"max_calls_per_session"`
	MaxCallsPerDay     int           `yaml:"max_calls_per_day"`
}

// AssistantConfig holds resolver and session settings.
type AssistantConfig struct {
	CompanyName    string `yaml:"company_name"`
	WelcomeMessage string `yaml:"welcome_message"`
	SystemPrompt   string `yaml:"system_prompt"`
	ErrorMessage   string `yaml:"error_message"`
	// SiteURL is the public booking-site base used in emailed links.
	SiteURL string `yaml:"site_url"`
	// LinkSecret signs the appointment self-management links.
	LinkSecret        string        `yaml:"link_secret"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	CacheSimilarity   float64       `yaml:"cache_similarity"`
	SuggestionOverlap float64       `yaml:"suggestion_overlap"`
}

// EscalationConfig holds operator-handoff settings.
type EscalationConfig struct {
	SMTP             SMTPConfig `yaml:"smtp"`
	ReviewRecipients []string   `yaml:"review_recipients"`
}

// SMTPConfig holds outbound email settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/assistant-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		AI: AIConfig{
			Provider:           "gemini",
			Model:              "gemini-2.0-flash",
			Timeout:            10 * time.Second,
			MaxTokens:          300,
			Temperature:        0.7,
			MaxCallsPerSession: 20,
			MaxCallsPerDay:     500,
		},
		Assistant: AssistantConfig{
			CompanyName:    "RTV Pioli",
			WelcomeMessage: "¡Hola! 👋 Soy el asistente virtual de RTV Pioli. ¿En qué puedo ayudarte?",
			SystemPrompt: "Sos un asistente virtual amable y profesional de una empresa de " +
				"Revisión Técnica Vehicular (RTV). Respondés en español argentino, de forma " +
				"clara, cálida y natural. Ayudás a los usuarios con consultas sobre turnos, " +
				"tarifas, ubicación y servicios.",
			ErrorMessage: "Perdón, tuve un problema procesando tu consulta. " +
				"Por favor intentá de nuevo o contactanos por WhatsApp.",
			SiteURL:           "https://rtvpioli.com.ar",
			SessionTTL:        24 * time.Hour,
			CacheSimilarity:   0.8,
			SuggestionOverlap: 0.6,
		},
		Escalation: EscalationConfig{
			SMTP: SMTPConfig{
				Host: "localhost",
				Port: 25,
				From: "asistente@rtvpioli.com.ar",
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "debug",
			LogFormat:   "json",
			ServiceName: "assistant-engine",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.AI.Provider != "gemini" && c.AI.Provider != "none" {
		return fmt.Errorf("invalid ai provider: %s", c.AI.Provider)
	}

	if c.AI.MaxCallsPerSession < 0 || c.AI.MaxCallsPerDay < 0 {
		return fmt.Errorf("ai call ceilings must not be negative")
	}

	if c.Assistant.CacheSimilarity < 0 || c.Assistant.CacheSimilarity > 1 {
		return fmt.Errorf("cache_similarity must be between 0 and 1")
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Database.Driver == "sqlite"
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Database.Postgres.DSN = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		// Parse redis://host:port format
		addr := strings.TrimPrefix(v, "redis://")
		cfg.Cache.Redis.Addr = addr
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}

	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}

	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}

	if v := os.Getenv("SITE_URL"); v != "" {
		cfg.Assistant.SiteURL = v
	}

	if v := os.Getenv("LINK_SECRET"); v != "" {
		cfg.Assistant.LinkSecret = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Escalation.SMTP.Host = v
	}

	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Escalation.SMTP.Password = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
