package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultScopes is the OAuth scope set for writing to a spreadsheet.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive",
}

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Sheets      SheetsConfig      `yaml:"sheets"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Lock        LockConfig        `yaml:"lock"`
	Journal     JournalConfig     `yaml:"journal"`
	Reports     ReportsConfig     `yaml:"reports"`
	Upload      UploadConfig      `yaml:"upload"`
	Log         LogConfig         `yaml:"log"`
	AWS         AWSConfig         `yaml:"aws"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int      `yaml:"port"`
	Host               string   `yaml:"host"`
	CORSOrigins        []string `yaml:"cors_origins"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

// GetHost returns the server host, with ECS detection
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

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// SheetsConfig identifies the target worksheet and tunes the API client.
type SheetsConfig struct {
	SpreadsheetID    string   `yaml:"spreadsheet_id"`
	Worksheet        string   `yaml:"worksheet"`
	BaseURL          string   `yaml:"base_url"`
	Scopes           []string `yaml:"scopes"`
	ValueInputOption string   `yaml:"value_input_option"` // USER_ENTERED or RAW
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	MaxRetries       int      `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c SheetsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CredentialsConfig lists where the service account key may come from.
// An uploaded key takes precedence over all of these when AllowUpload is set.
type CredentialsConfig struct {
	File        string `yaml:"file"`
	JSON        string `yaml:"-"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Key       string `yaml:"s3_key"`
	AllowUpload bool   `yaml:"allow_upload"`
}

// LockConfig controls the global append lock.
type LockConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
	WaitSeconds   int    `yaml:"wait_seconds"`
	PollMillis    int    `yaml:"poll_millis"`
}

func (c LockConfig) TTL() time.Duration  { return time.Duration(c.TTLSeconds) * time.Second }
func (c LockConfig) Wait() time.Duration { return time.Duration(c.WaitSeconds) * time.Second }
func (c LockConfig) Poll() time.Duration { return time.Duration(c.PollMillis) * time.Millisecond }

// JournalConfig holds the append journal database.
type JournalConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// Enabled reports whether appends are journaled to Postgres.
func (c JournalConfig) Enabled() bool { return c.DatabaseURL != "" }

// ReportsConfig controls where unmatched reports are archived.
type ReportsConfig struct {
	Type      string `yaml:"type"` // "local", "s3" or "none"
	LocalPath string `yaml:"local_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Prefix  string `yaml:"s3_prefix"`
}

// AWSConfig is shared by the S3 report archive and the S3 credentials source.
// Static keys are optional; without them the default chain applies.
type AWSConfig struct {
	Region    string `yaml:"region"`
	Profile   string `yaml:"profile"` // Empty string uses default credential chain (IAM role on ECS)
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// GetProfile returns the AWS profile, with environment variable override
func (c AWSConfig) GetProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	return c.Profile
}

// UploadConfig bounds the multipart upload and the result cache.
type UploadConfig struct {
	MaxBytes        int64 `yaml:"max_bytes"`
	MaxFiles        int   `yaml:"max_files"`
	PreviewRows     int   `yaml:"preview_rows"`
	CacheTTLMinutes int   `yaml:"cache_ttl_minutes"`
}

func (c UploadConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// LogConfig holds the log level name.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML config file and applies defaults. A missing path is not
// an error: the defaults plus environment overrides are a complete config.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.RateLimitPerSecond == 0 {
		cfg.Server.RateLimitPerSecond = 2
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Sheets.Worksheet == "" {
		cfg.Sheets.Worksheet = "Sheet1"
	}
	if cfg.Sheets.BaseURL == "" {
		cfg.Sheets.BaseURL = "https://sheets.googleapis.com"
	}
	if len(cfg.Sheets.Scopes) == 0 {
		cfg.Sheets.Scopes = DefaultScopes
	}
	if cfg.Sheets.ValueInputOption == "" {
		cfg.Sheets.ValueInputOption = "USER_ENTERED"
	}
	if cfg.Sheets.TimeoutSeconds == 0 {
		cfg.Sheets.TimeoutSeconds = 30
	}
	if cfg.Sheets.MaxRetries == 0 {
		cfg.Sheets.MaxRetries = 3
	}
	if cfg.Lock.TTLSeconds == 0 {
		cfg.Lock.TTLSeconds = 120
	}
	if cfg.Lock.WaitSeconds == 0 {
		cfg.Lock.WaitSeconds = 30
	}
	if cfg.Lock.PollMillis == 0 {
		cfg.Lock.PollMillis = 250
	}
	if cfg.Reports.Type == "" {
		cfg.Reports.Type = "local"
	}
	if cfg.Reports.LocalPath == "" {
		cfg.Reports.LocalPath = "./data"
	}
	if cfg.Reports.S3Prefix == "" {
		cfg.Reports.S3Prefix = "reports"
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-west-2"
	}
	if cfg.Upload.MaxBytes == 0 {
		cfg.Upload.MaxBytes = 32 << 20
	}
	if cfg.Upload.MaxFiles == 0 {
		cfg.Upload.MaxFiles = 20
	}
	if cfg.Upload.PreviewRows == 0 {
		cfg.Upload.PreviewRows = 5
	}
	if cfg.Upload.CacheTTLMinutes == 0 {
		cfg.Upload.CacheTTLMinutes = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SHEETS_SPREADSHEET_ID"); v != "" {
		cfg.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("SHEETS_WORKSHEET"); v != "" {
		cfg.Sheets.Worksheet = v
	}
	if v := os.Getenv("SHEETS_BASE_URL"); v != "" {
		cfg.Sheets.BaseURL = v
	}
	if v := os.Getenv("SHEETS_VALUE_INPUT_OPTION"); v != "" {
		cfg.Sheets.ValueInputOption = strings.ToUpper(v)
	}
	if v := os.Getenv("SHEETS_CREDENTIALS_FILE"); v != "" {
		cfg.Credentials.File = v
	}
	if v := os.Getenv("SHEETS_CREDENTIALS_JSON"); v != "" {
		cfg.Credentials.JSON = v
	}
	if v := os.Getenv("SHEETS_CREDENTIALS_S3_BUCKET"); v != "" {
		cfg.Credentials.S3Bucket = v
	}
	if v := os.Getenv("SHEETS_CREDENTIALS_S3_KEY"); v != "" {
		cfg.Credentials.S3Key = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Lock.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Lock.RedisPassword = v
	}
	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Journal.DatabaseURL = v
	}
	if v := os.Getenv("REPORTS_S3_BUCKET"); v != "" {
		cfg.Reports.S3Bucket = v
		cfg.Reports.Type = "s3"
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks the settings every append needs.
func (cfg *Config) Validate() error {
	var problems []string
	if cfg.Sheets.SpreadsheetID == "" {
		problems = append(problems, "sheets.spreadsheet_id is required")
	}
	if cfg.Sheets.Worksheet == "" {
		problems = append(problems, "sheets.worksheet is required")
	}
	switch cfg.Sheets.ValueInputOption {
	case "USER_ENTERED", "RAW":
	default:
		problems = append(problems, fmt.Sprintf("sheets.value_input_option %q must be USER_ENTERED or RAW", cfg.Sheets.ValueInputOption))
	}
	switch cfg.Reports.Type {
	case "local", "none":
	case "s3":
		if cfg.Reports.S3Bucket == "" {
			problems = append(problems, "reports.s3_bucket is required for s3 reports")
		}
	default:
		problems = append(problems, fmt.Sprintf("reports.type %q must be local, s3 or none", cfg.Reports.Type))
	}
	if cfg.Credentials.S3Bucket != "" && cfg.Credentials.S3Key == "" {
		problems = append(problems, "credentials.s3_key is required with credentials.s3_bucket")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
