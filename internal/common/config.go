package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name of the yaml config file.
	ConfigFileName = "stocktake"
	// EnvPrefix prefixes every environment override, e.g. STOCKTAKE_DATABASE_DSN.
	EnvPrefix = "STOCKTAKE"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Session  SessionConfig  `mapstructure:"session"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"`
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	MigrateOnStart   bool          `mapstructure:"migrate_on_start"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb"`
}

// StorageConfig selects where capture images live. Backend "memory" keeps
// them in process and is meant for local runs.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Provider        string   `mapstructure:"provider"`
	Tesseract       string   `mapstructure:"tesseract"`
	Lang            string   `mapstructure:"lang"`
	TessdataDir     string   `mapstructure:"tessdata_dir"`
	PSM             int      `mapstructure:"psm"`
	OEM             int      `mapstructure:"oem"`
	TSVConfidence   bool     `mapstructure:"tsv_confidence"`
	CredentialsFile string   `mapstructure:"credentials_file"`
	LanguageHints   []string `mapstructure:"language_hints"`
}

type WorkerConfig struct {
	Secret              string        `mapstructure:"secret"`
	Interval            time.Duration `mapstructure:"interval"`
	BatchSize           int           `mapstructure:"batch_size"`
	JobTimeout          time.Duration `mapstructure:"job_timeout"`
	PerceptualThreshold float64       `mapstructure:"perceptual_threshold"`
}

type SessionConfig struct {
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
}

// Timeout is the inactivity window.
func (c SessionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:stocktake.db",
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
			MigrateOnStart:  true,
		},
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			ShutdownTimeout: 10 * time.Second,
			MaxUploadMB:     10,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Bucket:  "stocktake",
		},
		OCR: OCRConfig{
			Provider:      "tesseract",
			Tesseract:     "tesseract",
			Lang:          "eng",
			PSM:           6,
			OEM:           1,
			TSVConfidence: true,
		},
		Worker: WorkerConfig{
			Interval:            30 * time.Second,
			BatchSize:           5,
			JobTimeout:          2 * time.Minute,
			PerceptualThreshold: 85,
		},
		Session: SessionConfig{TimeoutMinutes: 5},
		Auth:    AuthConfig{Issuer: "stocktake"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads .env, then the yaml file (path, or stocktake.yaml in the
// usual places), then STOCKTAKE_* environment variables, over the defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/stocktake")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.min_conns", d.Database.MinConns)
	v.SetDefault("database.max_conn_lifetime", d.Database.MaxConnLifetime)
	v.SetDefault("database.max_conn_idle_time", d.Database.MaxConnIdleTime)
	v.SetDefault("database.dial_timeout", d.Database.DialTimeout)
	v.SetDefault("database.statement_timeout", d.Database.StatementTimeout)
	v.SetDefault("database.migrate_on_start", d.Database.MigrateOnStart)

	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.endpoint", d.Storage.Endpoint)
	v.SetDefault("storage.access_key", d.Storage.AccessKey)
	v.SetDefault("storage.secret_key", d.Storage.SecretKey)
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.region", d.Storage.Region)
	v.SetDefault("storage.use_ssl", d.Storage.UseSSL)

	v.SetDefault("ocr.provider", d.OCR.Provider)
	v.SetDefault("ocr.tesseract", d.OCR.Tesseract)
	v.SetDefault("ocr.lang", d.OCR.Lang)
	v.SetDefault("ocr.tessdata_dir", d.OCR.TessdataDir)
	v.SetDefault("ocr.psm", d.OCR.PSM)
	v.SetDefault("ocr.oem", d.OCR.OEM)
	v.SetDefault("ocr.tsv_confidence", d.OCR.TSVConfidence)
	v.SetDefault("ocr.credentials_file", d.OCR.CredentialsFile)
	v.SetDefault("ocr.language_hints", d.OCR.LanguageHints)

	v.SetDefault("worker.secret", d.Worker.Secret)
	v.SetDefault("worker.interval", d.Worker.Interval)
	v.SetDefault("worker.batch_size", d.Worker.BatchSize)
	v.SetDefault("worker.job_timeout", d.Worker.JobTimeout)
	v.SetDefault("worker.perceptual_threshold", d.Worker.PerceptualThreshold)

	v.SetDefault("session.timeout_minutes", d.Session.TimeoutMinutes)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.issuer", d.Auth.Issuer)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks the values every command depends on.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("database.driver", c.Database.Driver, OneOf("postgres", "sqlite"))
	v.Field("database.dsn", c.Database.DSN, Required)
	v.Field("storage.backend", c.Storage.Backend, OneOf("memory", "minio"))
	if c.Storage.Backend == "minio" {
		v.Field("storage.endpoint", c.Storage.Endpoint, Required)
		v.Field("storage.bucket", c.Storage.Bucket, Required)
		v.Field("storage.access_key", c.Storage.AccessKey, Required)
		v.Field("storage.secret_key", c.Storage.SecretKey, Required)
	}
	v.Field("ocr.provider", c.OCR.Provider, OneOf("tesseract", "vision"))
	v.Field("worker.batch_size", c.Worker.BatchSize, IntRange(1, 10))
	v.Field("worker.perceptual_threshold", int(c.Worker.PerceptualThreshold), IntRange(1, 100))
	v.Field("session.timeout_minutes", c.Session.TimeoutMinutes, IntRange(1, 24*60))
	v.Field("log.level", strings.ToLower(c.Log.Level), OneOf("debug", "info", "warn", "error"))
	v.Field("log.format", strings.ToLower(c.Log.Format), OneOf("text", "json"))
	return ValidateAndReturnError(v)
}
