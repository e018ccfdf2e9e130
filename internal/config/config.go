package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	APNS     APNSConfig     `yaml:"apns"`
	FaceGate FaceGateConfig `yaml:"face_gate"`
	Snap     SnapConfig     `yaml:"snap"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int    `yaml:"port"`
	Host         string `yaml:"host"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds the snap archive bucket configuration
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// JWTConfig holds the identity token secret
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// APNSConfig holds push notification credentials
type APNSConfig struct {
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// Enabled reports whether push notifications are configured
func (c APNSConfig) Enabled() bool {
	return c.KeyFile != "" && c.KeyID != "" && c.TeamID != "" && c.Topic != ""
}

// FaceGateConfig points at the external face detection service
type FaceGateConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SnapConfig tunes the snap fan-out engine
type SnapConfig struct {
	Workers       int           `yaml:"workers"`
	DedupeWindow  time.Duration `yaml:"dedupe_window"`
	RatePerMinute int           `yaml:"rate_per_minute"`
	Burst         int           `yaml:"burst"`
}

// Load reads configuration from a YAML file. Values from a .env file or the
// environment override secrets in the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration and applies env overrides and defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"DB_PASSWORD":    &cfg.Database.Password,
		"JWT_SECRET":     &cfg.JWT.Secret,
		"AWS_ACCESS_KEY": &cfg.AWS.AccessKey,
		"AWS_SECRET_KEY": &cfg.AWS.SecretKey,
		"FACE_GATE_URL":  &cfg.FaceGate.URL,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 8 << 20
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.FaceGate.Timeout <= 0 {
		cfg.FaceGate.Timeout = 10 * time.Second
	}
	if cfg.Snap.Workers <= 0 {
		cfg.Snap.Workers = 8
	}
	if cfg.Snap.DedupeWindow <= 0 {
		cfg.Snap.DedupeWindow = 10 * time.Minute
	}
	if cfg.Snap.RatePerMinute <= 0 {
		cfg.Snap.RatePerMinute = 6
	}
	if cfg.Snap.Burst <= 0 {
		cfg.Snap.Burst = 3
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
