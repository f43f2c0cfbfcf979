package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gmail      GmailConfig      `yaml:"gmail" mapstructure:"gmail"`
	Index      IndexConfig      `yaml:"index" mapstructure:"index"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Alert      AlertConfig      `yaml:"alert" mapstructure:"alert"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the on-disk pipeline state.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// RunsDir is the parent directory for per-run artifact directories.
func (c DataConfig) RunsDir() string { return filepath.Join(c.Dir, "runs") }

// LedgerPath is the append-only sent-leads history file.
func (c DataConfig) LedgerPath() string { return filepath.Join(c.Dir, "sent_ledger.jsonl") }

// RotationPath is the metro rotation state file.
func (c DataConfig) RotationPath() string { return filepath.Join(c.Dir, "rotation.json") }

// DiscoveryConfig configures candidate search and selection.
type DiscoveryConfig struct {
	FreshTarget     int      `yaml:"fresh_target" mapstructure:"fresh_target"`
	PerQueryLimit   int      `yaml:"per_query_limit" mapstructure:"per_query_limit"`
	Locale          string   `yaml:"locale" mapstructure:"locale"`
	QueryTemplates  []string `yaml:"query_templates" mapstructure:"query_templates"`
	ScoringPath     string   `yaml:"scoring_path" mapstructure:"scoring_path"`
	SearchRateLimit float64  `yaml:"search_rate_limit" mapstructure:"search_rate_limit"`
	ReadRateLimit   float64  `yaml:"read_rate_limit" mapstructure:"read_rate_limit"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// AnthropicConfig holds Anthropic API settings for enrichment.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GmailConfig holds Gmail OAuth credentials and delivery defaults.
type GmailConfig struct {
	ClientID     string   `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string   `yaml:"client_secret" mapstructure:"client_secret"`
	RefreshToken string   `yaml:"refresh_token" mapstructure:"refresh_token"`
	From         string   `yaml:"from" mapstructure:"from"`
	To           []string `yaml:"to" mapstructure:"to"`
}

// IndexConfig configures the supplemental run-index database.
type IndexConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// NotionConfig holds Notion API credentials and the leads database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ServerConfig configures the read-only status API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// AlertConfig configures failure notifications for unattended runs.
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the fields required by the given mode are set.
// Modes: daily, send, serve, export-notion, export-salesforce, index.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "daily":
		if c.Jina.Key == "" {
			errs = append(errs, "jina.key is required")
		}
		if c.Discovery.FreshTarget < 1 {
			errs = append(errs, "discovery.fresh_target must be >= 1")
		}
		if c.Discovery.PerQueryLimit < 1 {
			errs = append(errs, "discovery.per_query_limit must be >= 1")
		}
		if len(c.Discovery.QueryTemplates) == 0 {
			errs = append(errs, "discovery.query_templates must not be empty")
		}
	case "send":
		if c.Gmail.ClientID == "" {
			errs = append(errs, "gmail.client_id is required")
		}
		if c.Gmail.ClientSecret == "" {
			errs = append(errs, "gmail.client_secret is required")
		}
		if c.Gmail.RefreshToken == "" {
			errs = append(errs, "gmail.refresh_token is required")
		}
		if c.Gmail.From == "" {
			errs = append(errs, "gmail.from is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "export-notion":
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.LeadDB == "" {
			errs = append(errs, "notion.lead_db is required")
		}
	case "export-salesforce":
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	case "index":
		if c.Index.Driver != "sqlite" && c.Index.Driver != "postgres" {
			errs = append(errs, "index.driver must be sqlite or postgres")
		}
		if c.Index.Driver == "postgres" && c.Index.DatabaseURL == "" {
			errs = append(errs, "index.database_url is required for postgres")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("discovery.fresh_target", 5)
	v.SetDefault("discovery.per_query_limit", 10)
	v.SetDefault("discovery.locale", "US")
	v.SetDefault("discovery.query_templates", []string{
		"family-owned businesses in {metro}",
		"established small businesses for sale {metro}",
		"local manufacturing companies {metro}",
		"{metro} business services companies",
	})
	v.SetDefault("discovery.search_rate_limit", 1.0)
	v.SetDefault("discovery.read_rate_limit", 1.0)
	v.SetDefault("index.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
