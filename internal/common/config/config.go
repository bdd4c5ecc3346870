// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the main application configuration struct. Every key maps to an
// environment variable by upper-casing it and replacing dots with underscores
// (smtp.host -> SMTP_HOST).
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	API       APIConfig       `mapstructure:"api"`
	Download  DownloadConfig  `mapstructure:"download"`
	Duplicate DuplicateConfig `mapstructure:"duplicate"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Mail      MailConfig      `mapstructure:"mail"`
	AWS       AWSConfig       `mapstructure:"aws"`
	SES       SESConfig       `mapstructure:"ses"`
	Receiver  ReceiverConfig  `mapstructure:"receiver"`
	PDF       PDFConfig       `mapstructure:"pdf"`
	Chrome    ChromeConfig    `mapstructure:"chrome"`
	Company   CompanyConfig   `mapstructure:"company"`
	Public    PublicConfig    `mapstructure:"public"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Frontend  FrontendConfig  `mapstructure:"frontend"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Minio     MinioConfig     `mapstructure:"minio"`
	Logging   LoggingConfig   `mapstructure:"logging"`

	// GeneratedSecret is set when no signing secret was configured and a
	// per-process one had to be generated.
	GeneratedSecret bool `mapstructure:"-"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// IsProduction reports whether the service runs with production rules (CORS, logging).
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Environment, "production")
}

type ServerConfig struct {
	Port                   int   `mapstructure:"port"`
	ReadTimeoutSeconds     int   `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int   `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int   `mapstructure:"shutdown_timeout_seconds"`
	BodyLimitBytes         int64 `mapstructure:"body_limit_bytes"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type APIConfig struct {
	Key string `mapstructure:"key"`
}

type DownloadConfig struct {
	TokenSecret     string `mapstructure:"token_secret"`
	TokenTTLSeconds int    `mapstructure:"token_ttl_seconds"`
}

func (d DownloadConfig) TokenTTL() time.Duration {
	return time.Duration(d.TokenTTLSeconds) * time.Second
}

type DuplicateConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
}

func (d DuplicateConfig) Window() time.Duration {
	return time.Duration(d.WindowSeconds) * time.Second
}

type DedupConfig struct {
	Backend              string `mapstructure:"backend"`
	SweepIntervalSeconds int    `mapstructure:"sweep_interval_seconds"`
}

func (d DedupConfig) SweepInterval() time.Duration {
	return time.Duration(d.SweepIntervalSeconds) * time.Second
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Delivery ---

type SMTPConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Pass               string `mapstructure:"pass"`
	SendTimeoutSeconds int    `mapstructure:"send_timeout_seconds"`
}

// Configured requires host, user and password together.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.User != "" && s.Pass != ""
}

func (s SMTPConfig) SendTimeout() time.Duration {
	return time.Duration(s.SendTimeoutSeconds) * time.Second
}

type MailConfig struct {
	Transport string `mapstructure:"transport"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type SESConfig struct {
	From string `mapstructure:"from"`
}

type ReceiverConfig struct {
	Email string `mapstructure:"email"`
}

// AdminRecipients splits the comma-separated RECEIVER_EMAIL list.
func (r ReceiverConfig) AdminRecipients() []string {
	return splitList(r.Email)
}

// --- Rendering ---

type PDFConfig struct {
	TemplatePath       string `mapstructure:"template_path"`
	StoragePath        string `mapstructure:"storage_path"`
	LoadTimeoutSeconds int    `mapstructure:"load_timeout_seconds"`
}

func (p PDFConfig) LoadTimeout() time.Duration {
	return time.Duration(p.LoadTimeoutSeconds) * time.Second
}

type ChromeConfig struct {
	Bin string `mapstructure:"bin"`
}

type CompanyConfig struct {
	Name     string `mapstructure:"name"`
	Currency string `mapstructure:"currency"`
}

type PublicConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// --- HTTP surface ---

type CORSConfig struct {
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

type FrontendConfig struct {
	Origin string `mapstructure:"origin"`
}

type QueueConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

func (m MinioConfig) Enabled() bool {
	return m.Endpoint != ""
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AllowedOrigins merges FRONTEND_ORIGIN and CORS_ALLOWED_ORIGINS.
func (c *Config) AllowedOrigins() []string {
	origins := splitList(c.Frontend.Origin)
	seen := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		seen[o] = struct{}{}
	}
	for _, o := range splitList(c.CORS.AllowedOrigins) {
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		origins = append(origins, o)
	}
	return origins
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
