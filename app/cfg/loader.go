package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 3847
	DefaultCacheTTL = 5 * time.Minute

	configDirName = ".claude-rss-reader"
)

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Server configuration
	Host string `long:"host" env:"HOST" description:"Interface to listen on (default 127.0.0.1)"`
	Port int    `long:"port" env:"PORT" description:"HTTP server port (default 3847)"`

	// Aggregation configuration
	ConfigFile   string        `long:"config" env:"CONFIG_FILE" description:"Provider configuration file (JSON or YAML)"`
	CacheTTL     time.Duration `long:"cache-ttl" env:"CACHE_TTL" description:"Maximum age of aggregated results (default 5m)"`
	FetchLimit   int           `long:"fetch-limit" env:"FETCH_LIMIT" default:"100" description:"Items requested from each provider per fetch"`
	FetchTimeout time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"10s" description:"Timeout for a single upstream request"`
	WarmInterval time.Duration `long:"warm-interval" env:"WARM_INTERVAL" default:"0s" description:"Background cache warm-up interval (0 disables)"`
	WorkerCount  int           `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers for cache warm-up"`

	// Streaming configuration
	HeartbeatInterval time.Duration `long:"heartbeat-interval" env:"HEARTBEAT_INTERVAL" default:"30s" description:"Interval between heartbeat events on /events"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Claude-RSS-Reader/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

type fileCfg struct {
	Host      string                    `yaml:"host"`
	Port      int                       `yaml:"port"`
	CacheTTL  int64                     `yaml:"cacheTTL"` // milliseconds
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// Load parses flags and environment, then merges the provider file found at
// --config or one of the default locations. Flags and environment win over
// the file. It returns nil, nil when help was requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	configFile, file, err := loadFile(raw.ConfigFile)
	if err != nil {
		return nil, err
	}

	cfg := &Cfg{
		Host:              cmp.Or(raw.Host, file.Host, DefaultHost),
		Port:              cmp.Or(raw.Port, file.Port, DefaultPort),
		CacheTTL:          cmp.Or(raw.CacheTTL, time.Duration(file.CacheTTL)*time.Millisecond, DefaultCacheTTL),
		FetchLimit:        raw.FetchLimit,
		FetchTimeout:      raw.FetchTimeout,
		WarmInterval:      raw.WarmInterval,
		WorkerCount:       raw.WorkerCount,
		HeartbeatInterval: raw.HeartbeatInterval,
		ConfigFile:        configFile,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
		Providers:         file.Providers,
	}

	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

// DefaultConfigPaths lists where the provider file is looked up when --config
// is not given, in order.
func DefaultConfigPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, configDirName, "config.json"))
	}
	return append(paths, "config.json")
}

func loadFile(explicit string) (string, *fileCfg, error) {
	if explicit != "" {
		file, err := parseFile(explicit)
		if err != nil {
			return "", nil, err
		}
		return explicit, file, nil
	}

	for _, path := range DefaultConfigPaths() {
		file, err := parseFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return path, file, nil
	}

	return "", &fileCfg{}, nil
}

func parseFile(path string) (*fileCfg, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// JSON documents are valid YAML, so one decoder serves both formats.
	var file fileCfg
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for name, providerConfig := range file.Providers {
		file.Providers[name] = resolveEnv(providerConfig)
	}

	return &file, nil
}

// resolveEnv replaces "env:NAME" values with the content of $NAME.
func resolveEnv(pc ProviderConfig) ProviderConfig {
	pc.Token = resolveEnvValue(pc.Token)
	pc.Location = resolveEnvValue(pc.Location)
	pc.Category = resolveEnvValue(pc.Category)
	pc.BaseURL = resolveEnvValue(pc.BaseURL)

	feeds := make([]string, 0, len(pc.Feeds))
	for _, feedURL := range pc.Feeds {
		if resolved := resolveEnvValue(feedURL); resolved != "" {
			feeds = append(feeds, resolved)
		}
	}
	pc.Feeds = feeds

	return pc
}

func resolveEnvValue(value string) string {
	if name, ok := strings.CutPrefix(value, "env:"); ok {
		return os.Getenv(name)
	}
	return value
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
