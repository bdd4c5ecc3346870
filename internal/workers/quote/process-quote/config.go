package processquote

import (
	"strings"

	"quote-service/internal/common/config"
)

type Config struct {
	// PublicBaseURL overrides the request origin in download links.
	PublicBaseURL string `mapstructure:"public_base_url"`
	// DownloadPath is the route prefix the download handler is mounted on.
	DownloadPath string `mapstructure:"download_path"`
}

func DefaultConfig() *Config {
	return &Config{DownloadPath: "/download-devis/"}
}

func CreateConfigFromAppConfig(appCfg *config.Config) *Config {
	cfg := DefaultConfig()
	if appCfg != nil {
		cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(appCfg.Public.BaseURL), "/")
	}
	return cfg
}
