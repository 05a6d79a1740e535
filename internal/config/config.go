package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AWS      AWSConfig      `yaml:"aws"`
	JWT      JWTConfig      `yaml:"jwt"`
	Auth     AuthConfig     `yaml:"auth"`
	Push     PushConfig     `yaml:"push"`
	CheckIn  CheckInConfig  `yaml:"checkin"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
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

// RedisConfig holds the reminder queue connection
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AWSConfig holds S3 configuration for avatars
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"` // S3-compatible storage outside AWS
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// AuthConfig selects how bearer tokens are verified
type AuthConfig struct {
	Provider        string `yaml:"provider"` // jwt or firebase
	FirebaseProject string `yaml:"firebase_project"`
	CredentialsFile string `yaml:"credentials_file"`
}

// PushConfig selects the push provider for reminders and alerts
type PushConfig struct {
	Provider string     `yaml:"provider"` // apns, fcm or none
	APNS     APNSConfig `yaml:"apns"`
}

// APNSConfig holds token-based APNs credentials
type APNSConfig struct {
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// CheckInConfig holds check-in defaults
type CheckInConfig struct {
	DefaultInterval      time.Duration `yaml:"default_interval"`
	ReminderPollInterval time.Duration `yaml:"reminder_poll_interval"`
	StateRefresh         time.Duration `yaml:"state_refresh"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file. Secrets may be supplied through
// the environment instead.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"DATABASE_PASSWORD":     &c.Database.Password,
		"JWT_SECRET":            &c.JWT.Secret,
		"REDIS_PASSWORD":        &c.Redis.Password,
		"AWS_ACCESS_KEY_ID":     &c.AWS.AccessKey,
		"AWS_SECRET_ACCESS_KEY": &c.AWS.SecretKey,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

// Validate fills defaults and rejects inconsistent settings
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Auth.Provider == "" {
		c.Auth.Provider = "jwt"
	}
	if c.Push.Provider == "" {
		c.Push.Provider = "none"
	}
	if c.CheckIn.DefaultInterval == 0 {
		c.CheckIn.DefaultInterval = 24 * time.Hour
	}
	if c.CheckIn.ReminderPollInterval == 0 {
		c.CheckIn.ReminderPollInterval = 30 * time.Second
	}
	if c.CheckIn.StateRefresh == 0 {
		c.CheckIn.StateRefresh = 30 * time.Second
	}

	switch c.Auth.Provider {
	case "jwt":
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required when auth.provider is jwt")
		}
	case "firebase":
		if c.Auth.FirebaseProject == "" {
			return fmt.Errorf("auth.firebase_project is required when auth.provider is firebase")
		}
	default:
		return fmt.Errorf("unknown auth provider %q", c.Auth.Provider)
	}

	switch c.Push.Provider {
	case "none", "fcm":
	case "apns":
		a := c.Push.APNS
		if a.KeyFile == "" || a.KeyID == "" || a.TeamID == "" || a.Topic == "" {
			return fmt.Errorf("push.apns requires key_file, key_id, team_id and topic")
		}
	default:
		return fmt.Errorf("unknown push provider %q", c.Push.Provider)
	}

	if c.CheckIn.DefaultInterval < 0 {
		return fmt.Errorf("checkin.default_interval must be positive")
	}
	return nil
}

// NeedsFirebase reports whether a Firebase app must be initialized
func (c *Config) NeedsFirebase() bool {
	return c.Auth.Provider == "firebase" || c.Push.Provider == "fcm"
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
