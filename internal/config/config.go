package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendS3          = "s3"
	BackendMinio       = "minio"
	BackendChartmuseum = "chartmuseum"
)

type Config struct {
	Secret   SecretConfig
	FTP      FTPConfig
	Storage  StorageConfig
	Expand   ExpandConfig
	Tracking TrackingConfig
	Lock     LockConfig
	WorkDir  string
	LogLevel string
}

// SecretConfig points at the Secrets Manager entry holding the FTP login.
type SecretConfig struct {
	ID     string
	Region string
}

type FTPConfig struct {
	// Host, User and Password are only used when no secret ID is configured.
	Host      string
	User      string
	Password  string
	Port      int
	Directory string
	Timeout   time.Duration
}

type StorageConfig struct {
	Backend       string
	Bucket        string
	StagingPrefix string
	PublishPrefix string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	LocalDir      string
}

type ExpandConfig struct {
	CompletionMarkers bool
}

type TrackingConfig struct {
	DatabaseURL string
	Driver      string
}

type LockConfig struct {
	RedisURL string
	TTL      time.Duration
}

// Options controls where Load looks for settings besides the environment.
type Options struct {
	EnvFile    string
	ConfigFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SECRET_ID", "")
	v.SetDefault("SECRET_REGION", "us-west-2")
	v.SetDefault("FTP_HOST", "")
	v.SetDefault("FTP_USER", "")
	v.SetDefault("FTP_PASSWORD", "")
	v.SetDefault("FTP_PORT", 21)
	v.SetDefault("FTP_DIR", "Level2")
	v.SetDefault("FTP_TIMEOUT_SECONDS", 30)
	v.SetDefault("STORAGE_BACKEND", BackendS3)
	v.SetDefault("STORAGE_BUCKET", "conifers")
	v.SetDefault("STORAGE_STAGING_PREFIX", "zip_daily_files/")
	v.SetDefault("STORAGE_PUBLISH_PREFIX", "unzip_daily_files/")
	v.SetDefault("STORAGE_REGION", "us-west-2")
	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_LOCAL_DIR", "./data/storage")
	v.SetDefault("EXPAND_COMPLETION_MARKERS", false)
	v.SetDefault("TRACKING_DATABASE_URL", "")
	v.SetDefault("TRACKING_DRIVER", "pgx")
	v.SetDefault("LOCK_REDIS_URL", "")
	v.SetDefault("LOCK_TTL_SECONDS", 3600)
	v.SetDefault("WORK_DIR", os.TempDir())
	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads configuration from the environment, an optional .env file and an
// optional config file (any format viper understands, keys as above).
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// Load .env file if it exists
	_ = godotenv.Load(envFile)

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	// Read from environment variables
	v.AutomaticEnv()

	cfg := &Config{
		Secret: SecretConfig{
			ID:     v.GetString("SECRET_ID"),
			Region: v.GetString("SECRET_REGION"),
		},
		FTP: FTPConfig{
			Host:      v.GetString("FTP_HOST"),
			User:      v.GetString("FTP_USER"),
			Password:  v.GetString("FTP_PASSWORD"),
			Port:      v.GetInt("FTP_PORT"),
			Directory: v.GetString("FTP_DIR"),
			Timeout:   time.Duration(v.GetInt("FTP_TIMEOUT_SECONDS")) * time.Second,
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_BACKEND"))),
			Bucket:        v.GetString("STORAGE_BUCKET"),
			StagingPrefix: NormalizePrefix(v.GetString("STORAGE_STAGING_PREFIX")),
			PublishPrefix: NormalizePrefix(v.GetString("STORAGE_PUBLISH_PREFIX")),
			Region:        v.GetString("STORAGE_REGION"),
			Endpoint:      v.GetString("STORAGE_ENDPOINT"),
			AccessKey:     v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:     v.GetString("STORAGE_SECRET_KEY"),
			UseSSL:        v.GetBool("STORAGE_USE_SSL"),
			LocalDir:      v.GetString("STORAGE_LOCAL_DIR"),
		},
		Expand: ExpandConfig{
			CompletionMarkers: v.GetBool("EXPAND_COMPLETION_MARKERS"),
		},
		Tracking: TrackingConfig{
			DatabaseURL: v.GetString("TRACKING_DATABASE_URL"),
			Driver:      v.GetString("TRACKING_DRIVER"),
		},
		Lock: LockConfig{
			RedisURL: v.GetString("LOCK_REDIS_URL"),
			TTL:      time.Duration(v.GetInt("LOCK_TTL_SECONDS")) * time.Second,
		},
		WorkDir:  v.GetString("WORK_DIR"),
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every run needs.
func (c *Config) Validate() error {
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket must be provided")
	}
	switch c.Storage.Backend {
	case BackendS3, BackendMinio, BackendChartmuseum:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.StagingPrefix == c.Storage.PublishPrefix {
		return fmt.Errorf("staging and publish prefixes must differ, both are %q", c.Storage.StagingPrefix)
	}
	if c.Secret.ID == "" && c.FTP.Host == "" {
		return fmt.Errorf("either SECRET_ID or FTP_HOST must be provided")
	}
	switch c.Tracking.Driver {
	case "pgx", "postgres":
	default:
		return fmt.Errorf("unknown tracking driver %q", c.Tracking.Driver)
	}
	if err := ensureDir(c.WorkDir); err != nil {
		return err
	}
	return nil
}

// NormalizePrefix trims surrounding slashes and appends exactly one, so
// "zip_daily_files" and "/zip_daily_files/" both become "zip_daily_files/".
// The empty prefix stays empty (bucket root).
func NormalizePrefix(prefix string) string {
	p := strings.Trim(strings.TrimSpace(prefix), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("work dir must be provided")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
