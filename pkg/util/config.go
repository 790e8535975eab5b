package util

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "ROADSNAP"

type RoutingConfig struct {
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	Profile     string        `mapstructure:"profile" validate:"required"`
	Geometry    string        `mapstructure:"geometry" validate:"oneof=geojson polyline"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"gte=1"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	BackoffUnit time.Duration `mapstructure:"backoff_unit" validate:"gte=0"`
	RateLimit   float64       `mapstructure:"rate_limit" validate:"gte=0"` // requests per second, 0 = unlimited
	CacheSize   int           `mapstructure:"cache_size" validate:"gte=0"`
}

type RefineConfig struct {
	SimplifyThresholdFt float64 `mapstructure:"simplify_threshold_ft" validate:"gte=0"`
	MaxSpeedFtPerSec    float64 `mapstructure:"max_speed_fps" validate:"gt=0"`
	// Input is the raw trace and Output the refined trace of cmd/refine.
	Input  string `mapstructure:"input"`
	Output string `mapstructure:"output"`
}

type PipelineConfig struct {
	Workers        int    `mapstructure:"workers" validate:"gte=1"`
	FlushThreshold int    `mapstructure:"flush_threshold" validate:"gte=1"`
	Progress       bool   `mapstructure:"progress"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
}

type StorageConfig struct {
	Input      string `mapstructure:"input"`
	Output     string `mapstructure:"output"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UseRateLimit bool          `mapstructure:"use_rate_limit"`
	RateLimit    float64       `mapstructure:"rate_limit" validate:"gte=0"`
}

type Config struct {
	Routing  RoutingConfig  `mapstructure:"routing"`
	Refine   RefineConfig   `mapstructure:"refine"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("routing.base_url", "http://127.0.0.1:5000")
	v.SetDefault("routing.profile", "driving")
	v.SetDefault("routing.geometry", "geojson")
	v.SetDefault("routing.max_retries", 5)
	v.SetDefault("routing.timeout", "15s")
	v.SetDefault("routing.backoff_unit", "1s")
	v.SetDefault("routing.rate_limit", 0)
	v.SetDefault("routing.cache_size", 0)

	v.SetDefault("refine.simplify_threshold_ft", 85.0)
	v.SetDefault("refine.max_speed_fps", 147.0)
	v.SetDefault("refine.input", "data.csv")
	v.SetDefault("refine.output", "refined_data.csv")

	v.SetDefault("pipeline.workers", 6)
	v.SetDefault("pipeline.flush_threshold", 10000)
	v.SetDefault("pipeline.progress", true)
	v.SetDefault("pipeline.metrics_addr", "")

	v.SetDefault("storage.input", "refined_data.csv")
	v.SetDefault("storage.output", "FULLSNAPV2.csv")
	v.SetDefault("storage.sqlite_path", "")

	v.SetDefault("server.port", 6060)
	v.SetDefault("server.timeout", "60s")
	v.SetDefault("server.use_rate_limit", false)
	v.SetDefault("server.rate_limit", 50)
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"osrm":            "routing.base_url",
	"profile":         "routing.profile",
	"geometry":        "routing.geometry",
	"max-retries":     "routing.max_retries",
	"timeout":         "routing.timeout",
	"rate-limit":      "routing.rate_limit",
	"cache-size":      "routing.cache_size",
	"threshold-ft":    "refine.simplify_threshold_ft",
	"max-speed-fps":   "refine.max_speed_fps",
	"raw":             "refine.input",
	"refined":         "refine.output",
	"workers":         "pipeline.workers",
	"flush-threshold": "pipeline.flush_threshold",
	"progress":        "pipeline.progress",
	"metrics-addr":    "pipeline.metrics_addr",
	"input":           "storage.input",
	"output":          "storage.output",
	"sqlite":          "storage.sqlite_path",
	"port":            "server.port",
}

// RegisterFlags adds every recognized command-line option to fs. Flags left
// unset on the command line do not override the config file or environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file (default ./data/config.* or ./config.*)")
	fs.String("osrm", "http://127.0.0.1:5000", "base url of the OSRM routing service")
	fs.String("profile", "driving", "OSRM routing profile")
	fs.String("geometry", "geojson", "route geometry encoding requested from OSRM: geojson|polyline")
	fs.Int("max-retries", 5, "maximum routing attempts per segment")
	fs.Duration("timeout", 15*time.Second, "per-attempt routing timeout")
	fs.Float64("rate-limit", 0, "maximum routing requests per second across all workers (0 = unlimited)")
	fs.Int("cache-size", 0, "number of routed segments kept in the route cache (0 = disabled)")
	fs.Float64("threshold-ft", 85, "simplification distance threshold in feet")
	fs.Float64("max-speed-fps", 147, "overspeed ceiling in feet per second")
	fs.String("raw", "data.csv", "raw trace csv read by refine (.bz2 accepted)")
	fs.String("refined", "refined_data.csv", "refined trace csv written by refine")
	fs.Int("workers", 6, "number of concurrent routing workers")
	fs.Int("flush-threshold", 10000, "rows accumulated before each output flush")
	fs.Bool("progress", true, "show a progress bar")
	fs.String("metrics-addr", "", "serve prometheus metrics on this address during the run, e.g. :9100")
	fs.String("input", "refined_data.csv", "refined trace csv read by snap (.bz2 accepted)")
	fs.String("output", "FULLSNAPV2.csv", "snapped trace csv written by snap")
	fs.String("sqlite", "", "also store the output in this sqlite database")
	fs.Int("port", 6060, "api port")
}

func ReadConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./data/")
		v.AddConfigPath(".")
	}

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error config file: %w", err)
	}
	return nil
}

// LoadConfig resolves the configuration from defaults, the optional config file,
// ROADSNAP_* environment variables and the flags in fs (highest precedence).
// fs may be nil.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := ""
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			configPath = f.Value.String()
		}
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if err := ReadConfig(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
