package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atlasintel/atlas-engine/internal/models"
)

// Config captures the settings required to boot the analytics engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Remote     RemoteConfig     `yaml:"remote"`
	Generative GenerativeConfig `yaml:"generative"`
	Benchmark  BenchmarkConfig  `yaml:"benchmark"`
	Store      StoreConfig      `yaml:"store"`
	Cache      CacheConfig      `yaml:"cache"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Notify     NotifyConfig     `yaml:"notify"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// RemoteConfig configures access to the remote analysis functions.
type RemoteConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"baseURL"`
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

// GenerativeConfig configures the third-party generative text endpoint.
type GenerativeConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BaseURL         string        `yaml:"baseURL"`
	APIKey          string        `yaml:"apiKey"`
	Model           string        `yaml:"model"`
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"maxOutputTokens"`
	Timeout         time.Duration `yaml:"timeout"`
	Interval        time.Duration `yaml:"interval"`
}

// BenchmarkConfig configures the external benchmark score source.
type BenchmarkConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
	TTL     time.Duration `yaml:"ttl"`
}

// StoreConfig controls the sqlite-backed durable store.
type StoreConfig struct {
	Path    string        `yaml:"path"`
	RiskTTL time.Duration `yaml:"riskTTL"`
}

// CacheConfig controls Redis-backed caching of feature state.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// MonitorConfig controls the crisis monitoring loop.
type MonitorConfig struct {
	Interval    time.Duration   `yaml:"interval"`
	MinSeverity models.Severity `yaml:"minSeverity"`
	Regions     []string        `yaml:"regions"`
	Categories  []string        `yaml:"categories"`
	MaxEvents   int             `yaml:"maxEvents"`
	MaxAlerts   int             `yaml:"maxAlerts"`
	RulesPath   string          `yaml:"rulesPath"`
}

// NotifyConfig controls where alert notifications are delivered.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhookURL"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ATLAS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Remote: RemoteConfig{
			Enabled:  true,
			Timeout:  10 * time.Second,
			Interval: time.Second,
		},
		Generative: GenerativeConfig{
			Enabled:         true,
			Model:           "atlas-analyst-1",
			Temperature:     0.7,
			MaxOutputTokens: 2048,
			Timeout:         30 * time.Second,
			Interval:        2 * time.Second,
		},
		Benchmark: BenchmarkConfig{
			Timeout: 5 * time.Second,
			TTL:     10 * time.Minute,
		},
		Store: StoreConfig{
			Path:    "atlas.db",
			RiskTTL: time.Hour,
		},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Monitor: MonitorConfig{
			Interval:    5 * time.Minute,
			MinSeverity: models.SeverityLow,
			MaxEvents:   50,
			MaxAlerts:   20,
			RulesPath:   "configs/alerts/default.yaml",
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATLAS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ATLAS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ATLAS_REMOTE_BASE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("ATLAS_REMOTE_ENABLED"); v != "" {
		cfg.Remote.Enabled = isTrue(v)
	}
	if v := os.Getenv("ATLAS_GENERATIVE_BASE_URL"); v != "" {
		cfg.Generative.BaseURL = v
	}
	if v := os.Getenv("ATLAS_GENERATIVE_API_KEY"); v != "" {
		cfg.Generative.APIKey = v
	}
	if v := os.Getenv("ATLAS_GENERATIVE_MODEL"); v != "" {
		cfg.Generative.Model = v
	}
	if v := os.Getenv("ATLAS_GENERATIVE_ENABLED"); v != "" {
		cfg.Generative.Enabled = isTrue(v)
	}
	if v := os.Getenv("ATLAS_GENERATIVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Generative.Interval = d
		}
	}
	if v := os.Getenv("ATLAS_BENCHMARK_BASE_URL"); v != "" {
		cfg.Benchmark.BaseURL = v
	}
	if v := os.Getenv("ATLAS_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("ATLAS_STORE_RISK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.RiskTTL = d
		}
	}
	if v := os.Getenv("ATLAS_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("ATLAS_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = isTrue(v)
	}
	if v := os.Getenv("ATLAS_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("ATLAS_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("ATLAS_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("ATLAS_MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.Interval = d
		}
	}
	if v := os.Getenv("ATLAS_MONITOR_MIN_SEVERITY"); v != "" {
		cfg.Monitor.MinSeverity = models.ParseSeverity(v)
	}
	if v := os.Getenv("ATLAS_MONITOR_REGIONS"); v != "" {
		cfg.Monitor.Regions = splitList(v)
	}
	if v := os.Getenv("ATLAS_MONITOR_CATEGORIES"); v != "" {
		cfg.Monitor.Categories = splitList(v)
	}
	if v := os.Getenv("ATLAS_MONITOR_RULES_PATH"); v != "" {
		cfg.Monitor.RulesPath = v
	}
	if v := os.Getenv("ATLAS_NOTIFY_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("ATLAS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ATLAS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
