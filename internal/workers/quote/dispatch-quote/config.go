package dispatchquote

import (
	"quote-service/internal/common/config"
)

type Config struct {
	// Enabled is false when the mail transport is missing credentials.
	Enabled         bool     `mapstructure:"enabled"`
	AdminRecipients []string `mapstructure:"admin_recipients"`
	Currency        string   `mapstructure:"currency"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:  true,
		Currency: "TND",
	}
}

// CreateConfigFromAppConfig reads RECEIVER_EMAIL and the company currency.
// Whether the transport is usable is decided by the caller.
func CreateConfigFromAppConfig(appCfg *config.Config, transportConfigured bool) *Config {
	cfg := DefaultConfig()
	cfg.Enabled = transportConfigured
	if appCfg == nil {
		return cfg
	}
	cfg.AdminRecipients = appCfg.Receiver.AdminRecipients()
	if appCfg.Company.Currency != "" {
		cfg.Currency = appCfg.Company.Currency
	}
	return cfg
}
