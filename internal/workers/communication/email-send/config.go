package emailsend

import (
	"fmt"
	"strings"
	"time"

	"quote-service/internal/common/config"
)

const (
	TransportSMTP = "smtp"
	TransportSES  = "ses"

	DefaultFromName = "Système de Devis"
	implicitTLSPort = 465
)

type Config struct {
	Transport    string        `mapstructure:"transport"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SMTPHost     string        `mapstructure:"smtp_host"`
	SMTPPort     int           `mapstructure:"smtp_port"`
	SMTPUsername string        `mapstructure:"smtp_username"`
	SMTPPassword string        `mapstructure:"smtp_password"`
	SESRegion    string        `mapstructure:"ses_region"`
	DefaultFrom  string        `mapstructure:"default_from"`
	FromName     string        `mapstructure:"from_name"`
}

func DefaultConfig() *Config {
	return &Config{
		Transport: TransportSMTP,
		Timeout:   30 * time.Second,
		SMTPPort:  587,
		FromName:  DefaultFromName,
	}
}

// CreateConfigFromAppConfig maps the application configuration onto the mail
// transport. With SMTP the sender is the authenticated SMTP user.
func CreateConfigFromAppConfig(appCfg *config.Config) *Config {
	cfg := DefaultConfig()
	if appCfg == nil {
		return cfg
	}

	if t := strings.ToLower(strings.TrimSpace(appCfg.Mail.Transport)); t != "" {
		cfg.Transport = t
	}
	if d := appCfg.SMTP.SendTimeout(); d > 0 {
		cfg.Timeout = d
	}
	cfg.SMTPHost = appCfg.SMTP.Host
	if appCfg.SMTP.Port > 0 {
		cfg.SMTPPort = appCfg.SMTP.Port
	}
	cfg.SMTPUsername = appCfg.SMTP.User
	cfg.SMTPPassword = appCfg.SMTP.Pass
	cfg.SESRegion = appCfg.AWS.Region

	if cfg.Transport == TransportSES {
		cfg.DefaultFrom = appCfg.SES.From
	} else {
		cfg.DefaultFrom = appCfg.SMTP.User
	}
	return cfg
}

// Configured reports whether the selected transport has everything it needs to send.
func (c *Config) Configured() bool {
	if c.Transport == TransportSES {
		return c.SESRegion != "" && c.DefaultFrom != ""
	}
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch c.Transport {
	case TransportSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("smtp_host is required")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return fmt.Errorf("smtp_port must be between 1 and 65535")
		}
	case TransportSES:
		if c.SESRegion == "" {
			return fmt.Errorf("ses_region is required")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.DefaultFrom == "" {
		return fmt.Errorf("default_from email is required")
	}
	return nil
}

func (c *Config) ImplicitTLS() bool {
	return c.SMTPPort == implicitTLSPort
}
