package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Decoder  DecoderConfig  `yaml:"decoder"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"client_id"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IngestConfig represents the log file ingestion pipeline configuration
type IngestConfig struct {
	Workers       int    `yaml:"workers"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
	QueueSubject  string `yaml:"queue_subject"`
	QueueGroup    string `yaml:"queue_group"`
}

// DecoderConfig holds the key material for the encrypted on-device log
// container. Both values are hex encoded 16-byte strings and are never
// embedded in uploaded files.
type DecoderConfig struct {
	AESKey string `yaml:"aes_key"`
	AESIV  string `yaml:"aes_iv"`
}

// KeyBytes decodes the configured AES key
func (c *DecoderConfig) KeyBytes() ([]byte, error) {
	if c.AESKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.AESKey)
	if err != nil {
		return nil, fmt.Errorf("decode aes_key: %w", err)
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("aes_key must be 16 bytes, got %d", len(key))
	}
	return key, nil
}

// IVBytes decodes the configured AES IV
func (c *DecoderConfig) IVBytes() ([]byte, error) {
	if c.AESIV == "" {
		return nil, nil
	}
	iv, err := hex.DecodeString(c.AESIV)
	if err != nil {
		return nil, fmt.Errorf("decode aes_iv: %w", err)
	}
	if len(iv) != 16 {
		return nil, fmt.Errorf("aes_iv must be 16 bytes, got %d", len(iv))
	}
	return iv, nil
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()

	if err := cfg.validateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if aesKey := os.Getenv("LOG_AES_KEY"); aesKey != "" {
		c.Decoder.AESKey = aesKey
	}

	if aesIV := os.Getenv("LOG_AES_IV"); aesIV != "" {
		c.Decoder.AESIV = aesIV
	}
}

// validateAndSetDefaults validates the configuration and fills in defaults
func (c *Config) validateAndSetDefaults() error {
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 2
	}
	if c.Ingest.Workers < 0 {
		return fmt.Errorf("invalid ingest worker count: %d", c.Ingest.Workers)
	}
	if c.Ingest.Workers > 50 {
		c.Ingest.Workers = 50
	}

	if c.Ingest.MaxUploadSize == 0 {
		c.Ingest.MaxUploadSize = 50 << 20 // 50 MiB
	}

	if c.Ingest.QueueSubject == "" {
		c.Ingest.QueueSubject = "logfile.parse"
	}
	if c.Ingest.QueueGroup == "" {
		c.Ingest.QueueGroup = "parsers"
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	// Key material is only needed once an encrypted container shows up,
	// but a half-configured pair is always a mistake.
	if (c.Decoder.AESKey == "") != (c.Decoder.AESIV == "") {
		return fmt.Errorf("decoder aes_key and aes_iv must be set together")
	}
	if _, err := c.Decoder.KeyBytes(); err != nil {
		return err
	}
	if _, err := c.Decoder.IVBytes(); err != nil {
		return err
	}

	return nil
}
