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
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendValkey = "valkey"
)

// Config captures the settings required to boot the pipeline RCA service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Jenkins       JenkinsConfig       `yaml:"jenkins"`
	Logging       LoggingConfig       `yaml:"logging"`
	Rules         RulesConfig         `yaml:"rules"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledgeBase"`
	Cache         CacheConfig         `yaml:"cache"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig controls HTTP, gRPC and metrics listeners.
type ServerConfig struct {
	HTTPAddress     string        `yaml:"httpAddress"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	RateLimit       float64       `yaml:"rateLimit"`
	RateBurst       int           `yaml:"rateBurst"`
	MaxSSEClients   int           `yaml:"maxSSEClients"`
}

// JenkinsConfig configures the default upstream Jenkins and the monitor loop.
type JenkinsConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	Username       string        `yaml:"username"`
	APIToken       string        `yaml:"apiToken"`
	Timeout        time.Duration `yaml:"timeout"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	Jobs           []string      `yaml:"jobs"`
	MaxConcurrent  int           `yaml:"maxConcurrent"`
	LogTailLines   int           `yaml:"logTailLines"`
	HistoryBuilds  int           `yaml:"historyBuilds"`
	SlowBuildScore float64       `yaml:"slowBuildScore"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls notification rule-pack loading.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// KnowledgeBaseConfig controls the solution catalog seed.
type KnowledgeBaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls caching of Jenkins lookups and stats snapshots.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Backend      string        `yaml:"backend"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	JobsTTL      time.Duration `yaml:"jobsTTL"`
	StatsTTL     time.Duration `yaml:"statsTTL"`
}

// NotificationsConfig controls notification retention and analysis history.
type NotificationsConfig struct {
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
	HistorySize     int           `yaml:"historySize"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PIPELINE_RCA_CONFIG")
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Jenkins.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("jenkins.maxConcurrent must be positive"))
	}
	if c.Jenkins.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("jenkins.pollInterval must be positive"))
	}
	if c.Notifications.Retention <= 0 {
		errs = append(errs, fmt.Errorf("notifications.retention must be positive"))
	}
	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case CacheBackendMemory:
		case CacheBackendValkey:
			if c.Cache.Addr == "" {
				errs = append(errs, fmt.Errorf("cache.addr is required for the valkey backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
		}
	}
	return errors.Join(errs...)
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress:     ":8080",
			GRPCAddress:     ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			RateLimit:       10,
			RateBurst:       20,
			MaxSSEClients:   100,
		},
		Jenkins: JenkinsConfig{
			Timeout:        15 * time.Second,
			PollInterval:   30 * time.Second,
			MaxConcurrent:  4,
			LogTailLines:   200,
			HistoryBuilds:  10,
			SlowBuildScore: 2.5,
		},
		Logging:       LoggingConfig{Level: "info", JSON: false},
		Rules:         RulesConfig{Path: "configs/rules/default.yaml"},
		KnowledgeBase: KnowledgeBaseConfig{},
		Cache: CacheConfig{
			Enabled:      false,
			Backend:      CacheBackendMemory,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			JobsTTL:      15 * time.Second,
			StatsTTL:     10 * time.Minute,
		},
		Notifications: NotificationsConfig{
			Retention:       30 * 24 * time.Hour,
			CleanupInterval: time.Hour,
			HistorySize:     500,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PIPELINE_RCA_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("PIPELINE_RCA_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("PIPELINE_RCA_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("PIPELINE_RCA_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = f
		}
	}
	if v := os.Getenv("JENKINS_URL"); v != "" {
		cfg.Jenkins.BaseURL = v
	}
	if v := os.Getenv("JENKINS_USER"); v != "" {
		cfg.Jenkins.Username = v
	}
	if v := os.Getenv("JENKINS_API_TOKEN"); v != "" {
		cfg.Jenkins.APIToken = v
	}
	if v := os.Getenv("PIPELINE_RCA_JENKINS_JOBS"); v != "" {
		cfg.Jenkins.Jobs = splitList(v)
	}
	if v := os.Getenv("PIPELINE_RCA_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Jenkins.PollInterval = d
		}
	}
	if v := os.Getenv("PIPELINE_RCA_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Jenkins.MaxConcurrent = n
		}
	}
	if v := os.Getenv("PIPELINE_RCA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PIPELINE_RCA_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("PIPELINE_RCA_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("PIPELINE_RCA_KNOWLEDGE_BASE_PATH"); v != "" {
		cfg.KnowledgeBase.Path = v
	}
	if v := os.Getenv("PIPELINE_RCA_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("PIPELINE_RCA_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("PIPELINE_RCA_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("PIPELINE_RCA_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("PIPELINE_RCA_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("PIPELINE_RCA_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("PIPELINE_RCA_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("PIPELINE_RCA_CACHE_JOBS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.JobsTTL = d
		}
	}
	if v := os.Getenv("PIPELINE_RCA_NOTIFICATION_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Notifications.Retention = d
		}
	}
	if v := os.Getenv("PIPELINE_RCA_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Notifications.HistorySize = n
		}
	}
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
