package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Import     ImportConfig     `yaml:"import"`
	Policy     PolicyConfig     `yaml:"policy"`
	Validation ValidationConfig `yaml:"validation"`
	Export     ExportConfig     `yaml:"export"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// ConnMaxLifetime returns the connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// RedisConfig holds Redis connection settings for progress tracking
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig holds export artifact storage configuration
type StorageConfig struct {
	Type       string `yaml:"type"` // "local" or "s3"
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// ImportConfig holds admission pipeline settings
type ImportConfig struct {
	ProgressEvery int `yaml:"progress_every"`
}

// PolicyConfig extends the built-in admission policy tables. Entries add
// to the defaults; category_sets, when given, replaces the default
// classification order entirely.
type PolicyConfig struct {
	ExtraBlockedSuffixes   []string            `yaml:"extra_blocked_suffixes"`
	ExtraTypoTLDs          []string            `yaml:"extra_typo_tlds"`
	ExtraRoleLocals        []string            `yaml:"extra_role_locals"`
	ExtraFakeLocals        []string            `yaml:"extra_fake_locals"`
	ExtraDisposableDomains []string            `yaml:"extra_disposable_domains"`
	CategorySets           []CategorySetConfig `yaml:"category_sets"`
}

// CategorySetConfig is one named domain set for classification. Order in
// the config file is the match order.
type CategorySetConfig struct {
	Name    string   `yaml:"name"`
	Domains []string `yaml:"domains"`
}

// RubricConfig holds the point weights for standard validation scoring.
type RubricConfig struct {
	SyntaxValid   int `yaml:"syntax_valid"`
	MXPresent     int `yaml:"mx_present"`
	NotRole       int `yaml:"not_role"`
	NotDisposable int `yaml:"not_disposable"`
	TopTierDomain int `yaml:"top_tier_domain"`
}

// IsZero reports whether no weight was set, meaning defaults apply.
func (r RubricConfig) IsZero() bool {
	return r.SyntaxValid == 0 && r.MXPresent == 0 && r.NotRole == 0 &&
		r.NotDisposable == 0 && r.TopTierDomain == 0
}

// ValidationConfig holds validation pipeline settings
type ValidationConfig struct {
	CheckDNS          bool         `yaml:"check_dns"`
	RejectRoleBased   bool         `yaml:"reject_role_based"`
	RejectGreylisted  bool         `yaml:"reject_greylisted"`
	Rubric            RubricConfig `yaml:"rubric"`
	SMTPPort          int          `yaml:"smtp_port"`
	SMTPTimeoutSecs   int          `yaml:"smtp_timeout_secs"`
	SMTPConcurrency   int          `yaml:"smtp_concurrency"`
	ProgressEvery     int          `yaml:"progress_every"`
	SMTPProgressEvery int          `yaml:"smtp_progress_every"`
	HeloDomain        string       `yaml:"helo_domain"`
	ProbeFrom         string       `yaml:"probe_from"`
}

// SMTPTimeout returns the probe timeout as a duration
func (c ValidationConfig) SMTPTimeout() time.Duration {
	return time.Duration(c.SMTPTimeoutSecs) * time.Second
}

// ExportConfig holds export state machine settings
type ExportConfig struct {
	MaxPartSize int    `yaml:"max_part_size"`
	Delimiter   string `yaml:"delimiter"`
}

// WorkerConfig holds background job runner settings
type WorkerConfig struct {
	PollIntervalSecs int `yaml:"poll_interval_secs"`
	Concurrency      int `yaml:"concurrency"`
}

// PollInterval returns the job poll interval as a duration
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./exports"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Import.ProgressEvery == 0 {
		cfg.Import.ProgressEvery = 100
	}
	if cfg.Validation.Rubric.IsZero() {
		cfg.Validation.Rubric = RubricConfig{
			SyntaxValid:   40,
			MXPresent:     25,
			NotRole:       10,
			NotDisposable: 10,
			TopTierDomain: 15,
		}
	}
	if cfg.Validation.SMTPPort == 0 {
		cfg.Validation.SMTPPort = 25
	}
	if cfg.Validation.SMTPTimeoutSecs == 0 {
		cfg.Validation.SMTPTimeoutSecs = 10
	}
	if cfg.Validation.SMTPConcurrency == 0 {
		cfg.Validation.SMTPConcurrency = 10
	}
	if cfg.Validation.ProgressEvery == 0 {
		cfg.Validation.ProgressEvery = 100
	}
	if cfg.Validation.SMTPProgressEvery == 0 {
		cfg.Validation.SMTPProgressEvery = 25
	}
	if cfg.Validation.HeloDomain == "" {
		cfg.Validation.HeloDomain = "mail.listkeeper.io"
	}
	if cfg.Validation.ProbeFrom == "" {
		cfg.Validation.ProbeFrom = "probe@listkeeper.io"
	}
	if cfg.Export.MaxPartSize == 0 {
		cfg.Export.MaxPartSize = 50000
	}
	if cfg.Export.Delimiter == "" {
		cfg.Export.Delimiter = ","
	}
	if cfg.Worker.PollIntervalSecs == 0 {
		cfg.Worker.PollIntervalSecs = 5
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 2
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if bucket := os.Getenv("EXPORT_S3_BUCKET"); bucket != "" {
		cfg.Storage.S3Bucket = bucket
		cfg.Storage.Type = "s3"
	}
	if region := os.Getenv("EXPORT_S3_REGION"); region != "" {
		cfg.Storage.AWSRegion = region
	}

	return cfg, nil
}
