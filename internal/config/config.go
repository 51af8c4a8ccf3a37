package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultServerAddress   = ":8090"
	DefaultMaxUploadSize   = "10MiB"
	DefaultProcessDelayMS  = 1000
	DefaultReplyDelayMS    = 1500
	DefaultSummaryDelayMS  = 2000
	DefaultSessionIdleMins = 120
	DefaultSweepMins       = 10
	DefaultDateLayout      = "1/2/2006"
	DefaultBackend         = "mock"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Worker      WorkerConfig              `json:"worker"`
	RateLimit   RateLimitConfig           `json:"rate_limit"`
	Backend     string                    `json:"backend"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Redis       RedisConfig               `json:"redis"`

	// MaxUploadBytes is derived from BasicConfig.MaxUploadSize.
	MaxUploadBytes int64 `json:"-"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type BasicConfig struct {
	ServerAddress      string   `json:"server_address"`
	MaxUploadSize      string   `json:"max_upload_size"`
	ProcessDelayMS     int      `json:"process_delay_ms"`
	ReplyDelayMS       int      `json:"reply_delay_ms"`
	SummaryDelayMS     int      `json:"summary_delay_ms"`
	SessionIdleMinutes int      `json:"session_idle_minutes"`
	SweepMinutes       int      `json:"sweep_minutes"`
	DateLayout         string   `json:"date_layout"`
	LogMode            string   `json:"log_mode"`
	AllowedOrigins     []string `json:"allowed_origins"`
	FileBaseDir        string   `json:"file_base_dir"`
}

type WorkerConfig struct {
	MinWorkers         int `json:"min_workers"`
	MaxWorkers         int `json:"max_workers"`
	QueueSize          int `json:"queue_size"`
	IdleTimeoutSeconds int `json:"idle_timeout_seconds"`
}

type RateLimitConfig struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// SummaryTTLMinutes controls how long cached summaries live.
	SummaryTTLMinutes int `json:"summary_ttl_minutes"`
}

// Enabled reports whether a redis host was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error: the built-in defaults are used.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	applyEnv(&cfg)
	if err := cfg.normalize(filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("STUDYAI_BACKEND")); v != "" {
		cfg.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("STUDYAI_ADDR")); v != "" {
		cfg.BasicConfig.ServerAddress = v
	}
	for name, prov := range cfg.Providers {
		if prov.APIKey == "" {
			prov.APIKey = os.Getenv(strings.ToUpper(name) + "_API_KEY")
			cfg.Providers[name] = prov
		}
	}
}

func (cfg *Config) normalize(baseDir string) error {
	b := &cfg.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = DefaultServerAddress
	}
	if b.MaxUploadSize == "" {
		b.MaxUploadSize = DefaultMaxUploadSize
	}
	size, err := humanize.ParseBytes(b.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("parse max_upload_size %q: %w", b.MaxUploadSize, err)
	}
	if size == 0 {
		return errors.New("max_upload_size must be positive")
	}
	cfg.MaxUploadBytes = int64(size)

	if b.ProcessDelayMS < 0 || b.ReplyDelayMS < 0 || b.SummaryDelayMS < 0 {
		return errors.New("simulated delays cannot be negative")
	}
	if b.ProcessDelayMS == 0 {
		b.ProcessDelayMS = DefaultProcessDelayMS
	}
	if b.ReplyDelayMS == 0 {
		b.ReplyDelayMS = DefaultReplyDelayMS
	}
	if b.SummaryDelayMS == 0 {
		b.SummaryDelayMS = DefaultSummaryDelayMS
	}
	if b.SessionIdleMinutes <= 0 {
		b.SessionIdleMinutes = DefaultSessionIdleMins
	}
	if b.SweepMinutes <= 0 {
		b.SweepMinutes = DefaultSweepMins
	}
	if b.DateLayout == "" {
		b.DateLayout = DefaultDateLayout
	}
	if b.LogMode == "" {
		b.LogMode = "dev"
	}
	if b.FileBaseDir == "" {
		b.FileBaseDir = "./data/uploads"
	}
	if !filepath.IsAbs(b.FileBaseDir) {
		b.FileBaseDir = filepath.Join(baseDir, b.FileBaseDir)
	}

	w := &cfg.Worker
	if w.MinWorkers <= 0 {
		w.MinWorkers = 2
	}
	if w.MaxWorkers < w.MinWorkers {
		w.MaxWorkers = w.MinWorkers * 4
	}
	if w.QueueSize <= 0 {
		w.QueueSize = 64
	}
	if w.IdleTimeoutSeconds <= 0 {
		w.IdleTimeoutSeconds = 30
	}

	if cfg.RateLimit.RPS <= 0 {
		cfg.RateLimit.RPS = 5
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = DefaultBackend
	}
	switch cfg.Backend {
	case "mock":
	case "openai", "claude", "gemini":
		if _, ok := cfg.Providers[cfg.Backend]; !ok {
			return fmt.Errorf("provider %s not configured", cfg.Backend)
		}
	default:
		return fmt.Errorf("unknown backend: %s", cfg.Backend)
	}

	if cfg.Redis.Enabled() {
		if cfg.Redis.Port == 0 {
			cfg.Redis.Port = 6379
		}
		if cfg.Redis.SummaryTTLMinutes <= 0 {
			cfg.Redis.SummaryTTLMinutes = 60
		}
	}
	return nil
}

func (b BasicConfig) ProcessDelay() time.Duration {
	return time.Duration(b.ProcessDelayMS) * time.Millisecond
}

func (b BasicConfig) ReplyDelay() time.Duration {
	return time.Duration(b.ReplyDelayMS) * time.Millisecond
}

func (b BasicConfig) SummaryDelay() time.Duration {
	return time.Duration(b.SummaryDelayMS) * time.Millisecond
}

func (b BasicConfig) SessionIdleTTL() time.Duration {
	return time.Duration(b.SessionIdleMinutes) * time.Minute
}

func (b BasicConfig) SweepInterval() time.Duration {
	return time.Duration(b.SweepMinutes) * time.Minute
}

func (w WorkerConfig) IdleTimeout() time.Duration {
	return time.Duration(w.IdleTimeoutSeconds) * time.Second
}
