package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/leadscrub/internal/model"
)

// Config is the top-level configuration.
type Config struct {
	Blacklist BlacklistConfig `yaml:"blacklist" mapstructure:"blacklist"`
	Scrub     ScrubConfig     `yaml:"scrub" mapstructure:"scrub"`
	Blob      BlobConfig      `yaml:"blob" mapstructure:"blob"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Job       JobConfig       `yaml:"job" mapstructure:"job"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// BlacklistConfig configures the suppression API client.
type BlacklistConfig struct {
	Key             string   `yaml:"key" mapstructure:"key"`
	BaseURL         string   `yaml:"base_url" mapstructure:"base_url"`
	LookupPath      string   `yaml:"lookup_path" mapstructure:"lookup_path"`
	BulkPath        string   `yaml:"bulk_path" mapstructure:"bulk_path"`
	Version         string   `yaml:"version" mapstructure:"version"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BulkTimeoutSecs int      `yaml:"bulk_timeout_secs" mapstructure:"bulk_timeout_secs"`
	RatePerSec      float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	BulkCategories  []string `yaml:"bulk_categories" mapstructure:"bulk_categories"`
}

type ScrubConfig struct {
	MaxPayloadBytes  int    `yaml:"max_payload_bytes" mapstructure:"max_payload_bytes"`
	Concurrency      int    `yaml:"concurrency" mapstructure:"concurrency"`
	Mode             string `yaml:"mode" mapstructure:"mode"`
	LeadIdentity     string `yaml:"lead_identity" mapstructure:"lead_identity"`
	HasHeaderDefault bool   `yaml:"has_header_default" mapstructure:"has_header_default"`
}

// ColumnDefaults returns the values applied to column configs that leave
// them unset.
func (c ScrubConfig) ColumnDefaults() model.ColumnDefaults {
	return model.ColumnDefaults{
		HasHeaderRow: c.HasHeaderDefault,
		Mode:         model.Mode(c.Mode),
		LeadIdentity: model.LeadIdentity(c.LeadIdentity),
	}
}

type BlobConfig struct {
	Driver       string    `yaml:"driver" mapstructure:"driver"`
	Root         string    `yaml:"root" mapstructure:"root"`
	UploadPrefix string    `yaml:"upload_prefix" mapstructure:"upload_prefix"`
	OutputBucket string    `yaml:"output_bucket" mapstructure:"output_bucket"`
	FTP          FTPConfig `yaml:"ftp" mapstructure:"ftp"`
}

type FTPConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

type JobConfig struct {
	IOTimeoutSecs int `yaml:"io_timeout_secs" mapstructure:"io_timeout_secs"`
}

// IOTimeout bounds every blob and document store call.
func (c JobConfig) IOTimeout() time.Duration {
	return time.Duration(c.IOTimeoutSecs) * time.Second
}

type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml, a .env file and LEADSCRUB_*
// environment variables. Variables already set win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADSCRUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("blacklist.key", "")
	v.SetDefault("blacklist.base_url", "https://api.blacklistalliance.net")
	v.SetDefault("blacklist.lookup_path", "/bulklookup")
	v.SetDefault("blacklist.bulk_path", "/bulk/upload")
	v.SetDefault("blacklist.version", "v1")
	v.SetDefault("blacklist.timeout_secs", 60)
	v.SetDefault("blacklist.bulk_timeout_secs", 300)
	v.SetDefault("blacklist.rate_per_sec", 5)
	v.SetDefault("blacklist.bulk_categories", []string{"invalid", "federal_dnc"})
	v.SetDefault("scrub.max_payload_bytes", 1<<20)
	v.SetDefault("scrub.concurrency", 4)
	v.SetDefault("scrub.mode", "lookup")
	v.SetDefault("scrub.lead_identity", "first_column")
	v.SetDefault("scrub.has_header_default", true)
	v.SetDefault("blob.driver", "local")
	v.SetDefault("blob.root", "./data")
	v.SetDefault("blob.upload_prefix", "uploads")
	v.SetDefault("blob.output_bucket", "")
	v.SetDefault("blob.ftp.addr", "")
	v.SetDefault("blob.ftp.user", "")
	v.SetDefault("blob.ftp.password", "")
	v.SetDefault("blob.ftp.timeout_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadscrub.db")
	v.SetDefault("job.io_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode needs. Modes: "scrub" runs
// jobs from the CLI, "serve" also listens for triggers, "jobs" only touches
// the document store.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "jobs":
	case "scrub", "serve":
		if c.Blacklist.Key == "" {
			errs = append(errs, "blacklist.key is required")
		}
		if c.Blob.OutputBucket == "" {
			errs = append(errs, "blob.output_bucket is required")
		}
		switch model.Mode(c.Scrub.Mode) {
		case model.ModeLookup, model.ModeBulk:
		default:
			errs = append(errs, fmt.Sprintf("scrub.mode %q must be lookup or bulk", c.Scrub.Mode))
		}
		switch model.LeadIdentity(c.Scrub.LeadIdentity) {
		case model.LeadIdentityFirstColumn, model.LeadIdentityNonPhoneColumns:
		default:
			errs = append(errs, fmt.Sprintf("scrub.lead_identity %q must be first_column or non_phone_columns", c.Scrub.LeadIdentity))
		}
		if c.Scrub.Concurrency < 1 || c.Scrub.Concurrency > 64 {
			errs = append(errs, "scrub.concurrency must be between 1 and 64")
		}
		if c.Scrub.MaxPayloadBytes <= 0 {
			errs = append(errs, "scrub.max_payload_bytes must be > 0")
		}
		if c.Blob.Driver == "ftp" && c.Blob.FTP.Addr == "" {
			errs = append(errs, "blob.ftp.addr is required for the ftp driver")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger sets up the global zap logger based on config.
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
