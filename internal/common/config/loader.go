// internal/common/config/loader.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from .env, optional config files and the environment.
func Load() (*Config, error) {
	loadEnvFile()
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	return build(v)
}

// LoadFromFile loads configuration from a specific file path; the environment still overrides it.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	applyDefaults(v)
	bindAliases(v)
	return v
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)

	if cfg.Download.TokenSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
		cfg.Download.TokenSecret = secret
		cfg.GeneratedSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults registers every key with viper so AutomaticEnv can see it during Unmarshal.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "quote-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("server.body_limit_bytes", 2<<20)

	v.SetDefault("api.key", "")
	v.SetDefault("download.token_secret", "")
	v.SetDefault("download.token_ttl_seconds", 3600)
	v.SetDefault("duplicate.window_seconds", 15)
	v.SetDefault("dedup.backend", "memory")
	v.SetDefault("dedup.sweep_interval_seconds", 60)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.pass", "")
	v.SetDefault("smtp.send_timeout_seconds", 30)
	v.SetDefault("mail.transport", "smtp")
	v.SetDefault("aws.region", "")
	v.SetDefault("ses.from", "")
	v.SetDefault("receiver.email", "")

	v.SetDefault("pdf.template_path", "")
	v.SetDefault("pdf.storage_path", "generated-pdfs")
	v.SetDefault("pdf.load_timeout_seconds", 30)
	v.SetDefault("chrome.bin", "")
	v.SetDefault("company.name", "Bedouielec Transformateurs")
	v.SetDefault("company.currency", "TND")
	v.SetDefault("public.base_url", "")

	v.SetDefault("cors.allowed_origins", "")
	v.SetDefault("frontend.origin", "")
	v.SetDefault("queue.max_depth", 100)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "quotes")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindAliases keeps the environment names the service has always been deployed with.
func bindAliases(v *viper.Viper) {
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("app.environment", "APP_ENVIRONMENT", "NODE_ENV")
	_ = v.BindEnv("download.token_secret", "DOWNLOAD_TOKEN_SECRET", "ENCRYPTION_KEY")
	_ = v.BindEnv("logging.level", "LOGGING_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOGGING_FORMAT", "LOG_FORMAT")
	_ = v.BindEnv("aws.region", "AWS_REGION", "AWS_DEFAULT_REGION")
}

func normalize(cfg *Config) {
	cfg.API.Key = strings.TrimSpace(cfg.API.Key)
	cfg.Download.TokenSecret = strings.TrimSpace(cfg.Download.TokenSecret)
	cfg.Dedup.Backend = strings.ToLower(strings.TrimSpace(cfg.Dedup.Backend))
	cfg.Mail.Transport = strings.ToLower(strings.TrimSpace(cfg.Mail.Transport))
	cfg.Public.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Public.BaseURL), "/")
}

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.BodyLimitBytes <= 0 {
		return fmt.Errorf("server.body_limit_bytes must be positive")
	}
	if c.Download.TokenTTLSeconds <= 0 {
		return fmt.Errorf("download.token_ttl_seconds must be positive")
	}
	if c.Duplicate.WindowSeconds <= 0 {
		return fmt.Errorf("duplicate.window_seconds must be positive")
	}
	if c.Dedup.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("dedup.sweep_interval_seconds must be positive")
	}
	switch c.Dedup.Backend {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required when dedup.backend is redis")
		}
	default:
		return fmt.Errorf("dedup.backend must be memory or redis, got %q", c.Dedup.Backend)
	}
	switch c.Mail.Transport {
	case "smtp":
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return fmt.Errorf("smtp.port must be between 1 and 65535")
		}
	case "ses":
		if c.AWS.Region == "" {
			return fmt.Errorf("aws.region is required when mail.transport is ses")
		}
		if c.SES.From == "" {
			return fmt.Errorf("ses.from is required when mail.transport is ses")
		}
	default:
		return fmt.Errorf("mail.transport must be smtp or ses, got %q", c.Mail.Transport)
	}
	if c.SMTP.SendTimeoutSeconds <= 0 {
		return fmt.Errorf("smtp.send_timeout_seconds must be positive")
	}
	if c.PDF.StoragePath == "" {
		return fmt.Errorf("pdf.storage_path is required")
	}
	if c.PDF.LoadTimeoutSeconds <= 0 {
		return fmt.Errorf("pdf.load_timeout_seconds must be positive")
	}
	if c.Queue.MaxDepth <= 0 {
		return fmt.Errorf("queue.max_depth must be positive")
	}
	return nil
}

// loadEnvFile loads the first .env found in the working directory or any parent up to the module root.
func loadEnvFile() string {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// expandEnvVars resolves ${VAR} placeholders written in config files.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
