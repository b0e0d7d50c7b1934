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
	Process  ProcessConfig  `yaml:"process" mapstructure:"process"`
	KML      KMLConfig      `yaml:"kml" mapstructure:"kml"`
	Defaults DefaultsConfig `yaml:"defaults" mapstructure:"defaults"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ProcessConfig configures the enrichment pipeline.
type ProcessConfig struct {
	TargetEPSG  int    `yaml:"target_epsg" mapstructure:"target_epsg"`
	Strict      bool   `yaml:"strict" mapstructure:"strict"`
	RulesFile   string `yaml:"rules_file" mapstructure:"rules_file"`
	Format      string `yaml:"format" mapstructure:"format"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`
}

// KMLConfig configures the KML/KMZ reader.
type KMLConfig struct {
	MaxEntryBytes int64 `yaml:"max_entry_bytes" mapstructure:"max_entry_bytes"`
}

// DefaultsConfig holds the fixed strings written into every record.
type DefaultsConfig struct {
	DeploymentType     string `yaml:"deployment_type" mapstructure:"deployment_type"`
	NeedSurvey         string `yaml:"need_survey" mapstructure:"need_survey"`
	PoleProvider       string `yaml:"pole_provider" mapstructure:"pole_provider"`
	PoleType           string `yaml:"pole_type" mapstructure:"pole_type"`
	BizPassBusiness    string `yaml:"bizpass_business" mapstructure:"bizpass_business"`
	BizPassResidential string `yaml:"bizpass_residential" mapstructure:"bizpass_residential"`
	ClusterPlaceholder string `yaml:"cluster_placeholder" mapstructure:"cluster_placeholder"`
}

// ServerConfig configures the upload server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	TempDir        string   `yaml:"temp_dir" mapstructure:"temp_dir"`
	MaxUploadMB    int64    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	RatePerSecond  float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"` // empty logs to stderr
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIBERPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("process.target_epsg", 32748)
	v.SetDefault("process.strict", false)
	v.SetDefault("process.format", "xlsx")
	v.SetDefault("process.concurrency", 4)
	v.SetDefault("process.output_dir", ".")
	v.SetDefault("kml.max_entry_bytes", 256<<20)
	v.SetDefault("defaults.deployment_type", "FAT EXT")
	v.SetDefault("defaults.need_survey", "YES")
	v.SetDefault("defaults.pole_provider", "NEW")
	v.SetDefault("defaults.pole_type", "7M")
	v.SetDefault("defaults.bizpass_business", "BIZ")
	v.SetDefault("defaults.bizpass_residential", "RESIDENTIAL")
	v.SetDefault("defaults.cluster_placeholder", "AUTO_GEN")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.temp_dir", "")
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("server.rate_per_second", 2.0)
	v.SetDefault("server.rate_burst", 5)
	v.SetDefault("server.timeout_secs", 120)
	v.SetDefault("server.allowed_origins", []string{"*"})

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	switch c.Process.Format {
	case "xlsx", "csv", "geojson", "json", "shp":
	default:
		return eris.Errorf("config: unsupported process.format %q", c.Process.Format)
	}
	if c.Process.Concurrency < 1 {
		return eris.Errorf("config: process.concurrency must be >= 1, got %d", c.Process.Concurrency)
	}
	if c.KML.MaxEntryBytes <= 0 {
		return eris.New("config: kml.max_entry_bytes must be positive")
	}
	if c.Server.MaxUploadMB <= 0 {
		return eris.New("config: server.max_upload_mb must be positive")
	}
	return nil
}

// InitLogger installs the global zap logger. Every entry carries fields,
// which callers use to stamp the command and build version.
func InitLogger(cfg LogConfig, fields ...zap.Field) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if cfg.File != "" {
		zapCfg.OutputPaths = []string{cfg.File}
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrapf(err, "config: parse log level %q", cfg.Level)
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build(zap.Fields(fields...))
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
