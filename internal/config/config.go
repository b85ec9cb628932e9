package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Scout     ScoutConfig     `yaml:"scout" mapstructure:"scout"`
	Miner     MinerConfig     `yaml:"miner" mapstructure:"miner"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Publisher PublisherConfig `yaml:"publisher" mapstructure:"publisher"`
	Drift     DriftConfig     `yaml:"drift" mapstructure:"drift"`
	Brief     BriefConfig     `yaml:"brief" mapstructure:"brief"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ScoutConfig configures source discovery.
type ScoutConfig struct {
	SourcesPath string `yaml:"sources_path" mapstructure:"sources_path"`
	BatchLimit  int    `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// MinerConfig configures evidence collection.
type MinerConfig struct {
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CachePath     string `yaml:"cache_path" mapstructure:"cache_path"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	GitHubToken   string `yaml:"github_token" mapstructure:"github_token"`
	TaxonomyPath  string `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
}

// ScorerConfig configures trust score computation.
type ScorerConfig struct {
	Weights DomainWeights `yaml:"weights" mapstructure:"weights"`
}

// DomainWeights holds the per-domain weights of the scoring rubric. They
// must sum to 1.
type DomainWeights struct {
	Authentication float64 `yaml:"authentication" mapstructure:"authentication"`
	Authorization  float64 `yaml:"authorization" mapstructure:"authorization"`
	DataProtection float64 `yaml:"data_protection" mapstructure:"data_protection"`
	AuditLogging   float64 `yaml:"audit_logging" mapstructure:"audit_logging"`
	Operational    float64 `yaml:"operational" mapstructure:"operational"`
	Compliance     float64 `yaml:"compliance" mapstructure:"compliance"`
}

// PublisherConfig configures index publication and the rank cache.
type PublisherConfig struct {
	RankTopN     int `yaml:"rank_top_n" mapstructure:"rank_top_n"`
	RankTTLHours int `yaml:"rank_ttl_hours" mapstructure:"rank_ttl_hours"`
}

// DriftConfig configures the drift sentinel.
type DriftConfig struct {
	BatchLimit int `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// BriefConfig configures daily brief generation.
type BriefConfig struct {
	TopMovers int `yaml:"top_movers" mapstructure:"top_movers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scout.sources_path", "sources.yaml")
	v.SetDefault("scout.batch_limit", 500)
	v.SetDefault("miner.concurrency", 4)
	v.SetDefault("miner.timeout_secs", 15)
	v.SetDefault("miner.cache_path", "radar-cache.db")
	v.SetDefault("miner.cache_ttl_hours", 24)
	v.SetDefault("miner.taxonomy_path", "")
	v.SetDefault("scorer.weights.authentication", 0.20)
	v.SetDefault("scorer.weights.authorization", 0.20)
	v.SetDefault("scorer.weights.data_protection", 0.20)
	v.SetDefault("scorer.weights.audit_logging", 0.15)
	v.SetDefault("scorer.weights.operational", 0.15)
	v.SetDefault("scorer.weights.compliance", 0.10)
	v.SetDefault("publisher.rank_top_n", 25)
	v.SetDefault("publisher.rank_ttl_hours", 24)
	v.SetDefault("drift.batch_limit", 1000)
	v.SetDefault("brief.top_movers", 5)

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

// Validate checks that required configuration is present and in range.
func (c *Config) Validate() error {
	var problems []string

	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Miner.Concurrency < 1 || c.Miner.Concurrency > 32 {
		problems = append(problems, "miner.concurrency must be between 1 and 32")
	}
	if c.Publisher.RankTopN < 1 {
		problems = append(problems, "publisher.rank_top_n must be >= 1")
	}

	w := c.Scorer.Weights
	sum := w.Authentication + w.Authorization + w.DataProtection +
		w.AuditLogging + w.Operational + w.Compliance
	if sum < 0.999 || sum > 1.001 {
		problems = append(problems, "scorer.weights must sum to 1.0")
	}
	for _, val := range []float64{
		w.Authentication, w.Authorization, w.DataProtection,
		w.AuditLogging, w.Operational, w.Compliance,
	} {
		if val < 0 {
			problems = append(problems, "scorer.weights values must be >= 0")
			break
		}
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
