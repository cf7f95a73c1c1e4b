// Package config loads service configuration from defaults, an optional YAML
// file, and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	NATS         NATSConfig         `yaml:"nats"`
	Documents    DocumentsConfig    `yaml:"documents"`
	Auth         AuthConfig         `yaml:"auth"`
	Escalation   EscalationConfig   `yaml:"escalation"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database"`
	SSLMode     string        `yaml:"ssl_mode"`
	MaxConns    int32         `yaml:"max_conns"`
	MinConns    int32         `yaml:"min_conns"`
	MaxConnTime time.Duration `yaml:"max_conn_time"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	HealthCheck time.Duration `yaml:"health_check"`
}

// DSN renders the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type DocumentsConfig struct {
	Backend    string `yaml:"backend"` // fs | s3
	Dir        string `yaml:"dir"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	// DevHeader lets local callers identify with X-Employee-ID when no
	// secret is configured. Never enabled outside development.
	DevHeader bool `yaml:"dev_header"`
}

type EscalationConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Workers       int           `yaml:"workers"`
	Enabled       bool          `yaml:"enabled"`
}

type ProvisioningConfig struct {
	DefaultDueDays int           `yaml:"default_due_days"`
	Interval       time.Duration `yaml:"interval"`
}

type TelemetryConfig struct {
	OTLPEndpoint string        `yaml:"otlp_endpoint"`
	Insecure     bool          `yaml:"insecure"`
	Interval     time.Duration `yaml:"interval"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "be-compliance-tasks",
			Version:     "0.1.0",
			Environment: "development",
			LogLevel:    "info",
		},
		Server: ServerConfig{
			Port:            8086,
			GRPCPort:        9086,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 20 * time.Second,
			RequestTimeout:  30 * time.Second,
			MaxUploadBytes:  20 << 20,
		},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			User:        "postgres",
			Database:    "compliance",
			SSLMode:     "disable",
			MaxConns:    10,
			MinConns:    1,
			MaxConnTime: time.Hour,
			MaxIdleTime: 30 * time.Minute,
			HealthCheck: time.Minute,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "notifications.compliance",
		},
		Documents: DocumentsConfig{
			Backend:  "fs",
			Dir:      "data/documents",
			S3Region: "us-east-1",
		},
		Auth: AuthConfig{DevHeader: true},
		Escalation: EscalationConfig{
			SweepInterval: time.Hour,
			Workers:       8,
			Enabled:       true,
		},
		Provisioning: ProvisioningConfig{
			DefaultDueDays: 7,
			Interval:       6 * time.Hour,
		},
		Telemetry: TelemetryConfig{Interval: 30 * time.Second},
		RateLimit: RateLimitConfig{RPS: 50, Burst: 100},
	}
}

// Load builds the configuration. CONFIG_FILE, when set, names a YAML file
// applied over the defaults; environment variables are applied last.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Service.Environment, "ENVIRONMENT")
	setString(&c.Service.LogLevel, "LOG_LEVEL")
	setString(&c.Service.Version, "SERVICE_VERSION")

	if err := setInt(&c.Server.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Server.GRPCPort, "GRPC_PORT"); err != nil {
		return err
	}

	setString(&c.Database.Host, "DB_HOST")
	if err := setInt(&c.Database.Port, "DB_PORT"); err != nil {
		return err
	}
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Database, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.NATS.URL, "NATS_URL")

	setString(&c.Documents.Backend, "DOCUMENT_STORAGE_TYPE")
	setString(&c.Documents.Dir, "DOCUMENT_DIR")
	setString(&c.Documents.S3Bucket, "DOCUMENT_S3_BUCKET")
	setString(&c.Documents.S3Region, "DOCUMENT_S3_REGION")
	setString(&c.Documents.S3Endpoint, "DOCUMENT_S3_ENDPOINT")
	setString(&c.Documents.S3Prefix, "DOCUMENT_S3_PREFIX")

	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.Issuer, "JWT_ISSUER")
	if err := setBool(&c.Auth.DevHeader, "AUTH_DEV_HEADER"); err != nil {
		return err
	}

	if err := setDuration(&c.Escalation.SweepInterval, "ESCALATION_SWEEP_INTERVAL"); err != nil {
		return err
	}
	if err := setInt(&c.Escalation.Workers, "ESCALATION_WORKERS"); err != nil {
		return err
	}
	if err := setBool(&c.Escalation.Enabled, "ESCALATION_ENABLED"); err != nil {
		return err
	}
	if err := setInt(&c.Provisioning.DefaultDueDays, "PROVISIONING_DEFAULT_DUE_DAYS"); err != nil {
		return err
	}

	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Documents.Backend {
	case "fs":
	case "s3":
		if c.Documents.S3Bucket == "" {
			return fmt.Errorf("documents: s3 backend requires a bucket")
		}
	default:
		return fmt.Errorf("documents: unsupported backend %q", c.Documents.Backend)
	}
	if c.Escalation.Workers < 1 {
		return fmt.Errorf("escalation: workers must be at least 1")
	}
	if c.Provisioning.DefaultDueDays < 1 {
		return fmt.Errorf("provisioning: default_due_days must be at least 1")
	}
	if !c.IsDevelopment() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth: jwt_secret is required outside development")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local environment.
func (c *Config) IsDevelopment() bool {
	return c.Service.Environment == "development" || c.Service.Environment == "local"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
