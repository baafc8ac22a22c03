package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Privacy   PrivacyConfig   `yaml:"privacy" mapstructure:"privacy"`
	Sessions  SessionConfig   `yaml:"sessions" mapstructure:"sessions"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	GitHub    GitHubConfig    `yaml:"github" mapstructure:"github"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	RateLimit    struct {
		Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
		Burst             int     `yaml:"burst" mapstructure:"burst"`
	} `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PrivacyConfig contains redaction engine configuration
type PrivacyConfig struct {
	Engine      string   `yaml:"engine" mapstructure:"engine"` // pattern or statistical
	KnownValues []string `yaml:"known_values" mapstructure:"known_values"`
	Model       struct {
		Path      string  `yaml:"path" mapstructure:"path"`
		MaxLength int     `yaml:"max_length" mapstructure:"max_length"`
		Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	} `yaml:"model" mapstructure:"model"`
}

// SessionConfig contains conversation session configuration
type SessionConfig struct {
	HistoryWindow int           `yaml:"history_window" mapstructure:"history_window"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// StorageConfig contains object storage configuration
type StorageConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Region   string `yaml:"region" mapstructure:"region"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"` // for S3-compatible stores
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// RedisConfig contains the optional Redis token vault configuration
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Address  string        `yaml:"address" mapstructure:"address"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// LLMConfig contains upstream model configuration
type LLMConfig struct {
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey       string        `yaml:"api_key" mapstructure:"api_key"`
	Model        string        `yaml:"model" mapstructure:"model"`
	MaxTokens    int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	SystemPrompt string        `yaml:"system_prompt" mapstructure:"system_prompt"`
}

// GitHubConfig contains the repository introspection tool configuration
type GitHubConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	BaseURL  string        `yaml:"base_url" mapstructure:"base_url"`
	Token    string        `yaml:"token" mapstructure:"token"`
	Username string        `yaml:"username" mapstructure:"username"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AuditConfig contains the optional Postgres audit trail configuration
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Privacy: PrivacyConfig{
			Engine: "pattern",
		},
		Sessions: SessionConfig{
			HistoryWindow: 10,
			TTL:           24 * time.Hour,
		},
		Storage: StorageConfig{
			Enabled: false,
			Region:  "us-east-1",
			Prefix:  "",
		},
		Redis: RedisConfig{
			Enabled: false,
			Address: "localhost:6379",
			TTL:     24 * time.Hour,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
		GitHub: GitHubConfig{
			Enabled: false,
			BaseURL: "https://api.github.com",
			Timeout: 15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  512,
			AllowedOrigins:  []string{"*"},
		},
	}
	cfg.Server.RateLimit.Enabled = true
	cfg.Server.RateLimit.RequestsPerSecond = 10
	cfg.Server.RateLimit.Burst = 20
	cfg.Privacy.Model.MaxLength = 512
	cfg.Privacy.Model.Threshold = 0.5
	cfg.Logging.File.Path = "logs/chatvault.log"
	return cfg
}
