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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Merge   MergeConfig   `yaml:"merge" mapstructure:"merge"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourcesConfig holds the per-provider endpoint settings.
type SourcesConfig struct {
	BNA BNAConfig `yaml:"bna" mapstructure:"bna"`
	OCM OCMConfig `yaml:"ocm" mapstructure:"ocm"`
	OSM OSMConfig `yaml:"osm" mapstructure:"osm"`
}

// BNAConfig configures the Bundesnetzagentur charging-map scrape. The
// registry page links to the XLSX download; the link is discovered at
// pull time.
type BNAConfig struct {
	PageURL string `yaml:"page_url" mapstructure:"page_url"`
}

// OCMConfig configures the OpenChargeMap poi API.
type OCMConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	CountryCode string `yaml:"country_code" mapstructure:"country_code"`
	MaxResults  int    `yaml:"max_results" mapstructure:"max_results"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
}

// OSMConfig configures the Overpass API query for OpenStreetMap data.
type OSMConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Area    string `yaml:"area" mapstructure:"area"`
}

// FetchConfig configures outbound HTTP behavior.
type FetchConfig struct {
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries        int     `yaml:"retries" mapstructure:"retries"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	BackoffBaseMs  int     `yaml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	MaxResponseMB  int     `yaml:"max_response_mb" mapstructure:"max_response_mb"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxConcurrency int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// MergeConfig configures the duplicate detection engine.
type MergeConfig struct {
	ScoreThreshold    float64      `yaml:"score_threshold" mapstructure:"score_threshold"`
	MaxDistanceMeters float64      `yaml:"max_distance_meters" mapstructure:"max_distance_meters"`
	NeighborK         int          `yaml:"neighbor_k" mapstructure:"neighbor_k"`
	Strategy          string       `yaml:"strategy" mapstructure:"strategy"`
	Shuffle           bool         `yaml:"shuffle" mapstructure:"shuffle"`
	Seed              int64        `yaml:"seed" mapstructure:"seed"`
	Weights           MergeWeights `yaml:"weights" mapstructure:"weights"`
}

// MergeWeights holds the similarity component weights.
type MergeWeights struct {
	Operator float64 `yaml:"operator" mapstructure:"operator"`
	Address  float64 `yaml:"address" mapstructure:"address"`
	Distance float64 `yaml:"distance" mapstructure:"distance"`
}

// ExportConfig configures the map export.
type ExportConfig struct {
	OutputPath   string `yaml:"output_path" mapstructure:"output_path"`
	BoundaryPath string `yaml:"boundary_path" mapstructure:"boundary_path"`
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
	v.SetEnvPrefix("CHARGING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "charging.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("sources.bna.page_url", "https://www.bundesnetzagentur.de/DE/Sachgebiete/ElektrizitaetundGas/Unternehmen_Institutionen/HandelundVertrieb/Ladesaeulenkarte/Ladesaeulenkarte_node.html")
	v.SetDefault("sources.ocm.base_url", "https://api.openchargemap.io/v3/poi/")
	v.SetDefault("sources.ocm.country_code", "DE")
	v.SetDefault("sources.ocm.max_results", 100000)
	v.SetDefault("sources.osm.base_url", "http://overpass-api.de/api/interpreter")
	v.SetDefault("sources.osm.area", "Deutschland")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.rate_per_second", 1.0)
	v.SetDefault("fetch.backoff_base_ms", 500)
	v.SetDefault("fetch.max_response_mb", 512)
	v.SetDefault("fetch.user_agent", "charging-cli/1.0")
	v.SetDefault("fetch.max_concurrency", 3)
	v.SetDefault("merge.score_threshold", 0.49)
	v.SetDefault("merge.max_distance_meters", 100)
	v.SetDefault("merge.neighbor_k", 40)
	v.SetDefault("merge.strategy", "replace")
	v.SetDefault("merge.weights.operator", 0.2)
	v.SetDefault("merge.weights.address", 0.1)
	v.SetDefault("merge.weights.distance", 0.7)
	v.SetDefault("export.output_path", "kepler_charging_map.csv")

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

// Validate checks the settings a command depends on. mode is the command
// group: "pull", "process", "merge" or "export".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "pull":
		if c.Sources.BNA.PageURL == "" {
			problems = append(problems, "sources.bna.page_url is required")
		}
		if c.Sources.OCM.BaseURL == "" {
			problems = append(problems, "sources.ocm.base_url is required")
		}
		if c.Sources.OSM.BaseURL == "" {
			problems = append(problems, "sources.osm.base_url is required")
		}
		if c.Fetch.MaxConcurrency < 1 {
			problems = append(problems, "fetch.max_concurrency must be >= 1")
		}
	case "process":
		// Store checks above are all it needs.
	case "merge":
		if c.Merge.MaxDistanceMeters <= 0 {
			problems = append(problems, "merge.max_distance_meters must be > 0")
		}
		if c.Merge.NeighborK < 1 {
			problems = append(problems, "merge.neighbor_k must be >= 1")
		}
		if c.Merge.Strategy != "replace" && c.Merge.Strategy != "union" {
			problems = append(problems, "merge.strategy must be replace or union")
		}
		if c.Merge.Weights.Operator < 0 || c.Merge.Weights.Address < 0 || c.Merge.Weights.Distance < 0 {
			problems = append(problems, "merge.weights values must be >= 0")
		}
	case "export":
		if c.Export.OutputPath == "" {
			problems = append(problems, "export.output_path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
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
