package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/desacikupa/umkmdesa/pkg"

	"github.com/BurntSushi/toml"
)

const (
	ImageStoreDisk = "disk"
	ImageStoreS3   = "s3"
)

type Config struct {
	// set from the -env flag, not from the toml file
	Environment string `toml:"-"`

	Host string `toml:"host"`
	Port int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`
	PostgresUser   string `toml:"postgres_user"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// prometheus
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	LoginRateLimitAllowedPerMin int      `toml:"login_rate_limit_allowed_per_min"`
	AllowedOrigins              []string `toml:"allowed_origins"`
	// addresses or CIDRs of reverse proxies whose forwarding headers are believed
	TrustedProxies []string `toml:"trusted_proxies"`
	// 0 disables the category list cache; left out, it defaults to 60
	CategoryCacheSeconds int `toml:"category_cache_seconds"`

	// image store, "disk" or "s3"
	ImageStore      string `toml:"image_store"`
	MaxUploadSizeMB int    `toml:"max_upload_size_mb"`
	ImagesRootPath  string `toml:"images_root_path"`
	ImagesBaseURL   string `toml:"images_base_url"`
	S3Endpoint      string `toml:"s3_endpoint"`
	S3Region        string `toml:"s3_region"`
	S3Bucket        string `toml:"s3_bucket"`
	S3PublicBaseURL string `toml:"s3_public_base_url"`
}

func (c *Config) IsProduction() bool {
	return isProduction(c.Environment)
}

func (c *Config) validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.PostgresHost == "" || c.PostgresDBName == "" {
		return fmt.Errorf("postgres host and db name must be set")
	}
	if c.CategoryCacheSeconds < 0 {
		return fmt.Errorf("invalid category_cache_seconds: %d", c.CategoryCacheSeconds)
	}
	if _, err := pkg.NewClientIPResolver(c.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted_proxies: %w", err)
	}
	switch c.ImageStore {
	case ImageStoreDisk:
		if c.ImagesRootPath == "" {
			return fmt.Errorf("images_root_path must be set for the disk image store")
		}
		if err := validateBaseURL(c.ImagesBaseURL); err != nil {
			return fmt.Errorf("images_base_url: %w", err)
		}
	case ImageStoreS3:
		if c.S3Bucket == "" || c.S3Region == "" {
			return fmt.Errorf("s3_bucket and s3_region must be set for the s3 image store")
		}
	default:
		return fmt.Errorf("unknown image store: [%s]", c.ImageStore)
	}
	return nil
}

func validateBaseURL(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("must be set for the disk image store")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("[%s] is not an absolute http(s) url", baseURL)
	}
	return nil
}

type Toml struct {
	Development *Config
	Production  *Config
}

func sectionName(env string) (string, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return "development", nil
	case "prod", "production":
		return "production", nil
	default:
		return "", fmt.Errorf("unknown env: %s", env)
	}
}

func (t *Toml) Get(env string) (*Config, error) {
	section, err := sectionName(env)
	if err != nil {
		return nil, err
	}
	cfg := t.Development
	if section == "production" {
		cfg = t.Production
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section for env [%s] missing", env)
	}
	cfg.Environment = strings.ToLower(env)
	return cfg, nil
}

// Load reads the TOML file at path and returns the section for env.
func Load(env, path string) (*Config, error) {
	var t Toml
	md, err := toml.DecodeFile(path, &t)
	if err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}

	section, _ := sectionName(env)
	applyDefaults(cfg)
	if !md.IsDefined(section, "category_cache_seconds") {
		cfg.CategoryCacheSeconds = 60
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid [%s] config: %w", env, err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.PostgresPort == "" {
		cfg.PostgresPort = "5432"
	}
	if cfg.PostgresUser == "" {
		cfg.PostgresUser = "postgres"
	}
	if cfg.RedisPort == "" {
		cfg.RedisPort = "6379"
	}
	if cfg.LoginRateLimitAllowedPerMin <= 0 {
		cfg.LoginRateLimitAllowedPerMin = 10
	}
	if cfg.ImageStore == "" {
		cfg.ImageStore = ImageStoreDisk
	}
	if cfg.MaxUploadSizeMB <= 0 {
		cfg.MaxUploadSizeMB = 5
	}
}

func isProduction(env string) bool {
	switch strings.ToLower(env) {
	case "prod", "production":
		return true
	default:
		return false
	}
}
