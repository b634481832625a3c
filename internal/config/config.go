package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the search paths when set.
const EnvConfigPath = "PHISHGUARD_CONFIG"

var searchPaths = []string{
	"configs/config.yaml",
	"./config.yaml",
	"/etc/phishguard/config.yaml",
	"/var/lib/phishguard/configs/config.yaml",
}

type Config struct {
	App    AppConfig    `yaml:"app"`
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Feeds  FeedsConfig  `yaml:"feeds"`
	Lists  ListsConfig  `yaml:"lists"`
}

type AppConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type ServerConfig struct {
	Addr                string `yaml:"addr"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	MaxBodyBytes        int64  `yaml:"max_body_bytes"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type FeedsConfig struct {
	UpdateInterval int            `yaml:"update_interval_hours"`
	TimeoutSeconds int            `yaml:"timeout_seconds"`
	ArchiveDir     string         `yaml:"archive_dir"`
	Sources        []SourceConfig `yaml:"sources"`
}

type ListsConfig struct {
	Blacklist []string `yaml:"blacklist"`
	Whitelist []string `yaml:"whitelist"`
	MaxRules  int      `yaml:"max_rules"`
}

// SourceConfig describes one downloadable feed.
// TargetColumn is a CSV header name, or a zero-based index for headerless files.
type SourceConfig struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	Format       string `yaml:"format"`
	TargetColumn string `yaml:"target_column"`
	Compression  string `yaml:"compression"`
	Action       string `yaml:"action"`
	Limit        int    `yaml:"limit"`
}

const (
	FormatCSV   = "csv"
	FormatText  = "text"
	FormatHosts = "hosts"

	ActionBlock = "block"
	ActionAllow = "allow"

	CompressionGzip = "gzip"
)

// ColumnIndex returns the column index when TargetColumn is numeric.
func (s SourceConfig) ColumnIndex() (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(s.TargetColumn))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// EffectiveAction defaults to block.
func (s SourceConfig) EffectiveAction() string {
	if s.Action == "" {
		return ActionBlock
	}
	return strings.ToLower(s.Action)
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.Feeds.UpdateInterval) * time.Hour
}

func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feeds.TimeoutSeconds) * time.Second
}

// Default is used when no config file exists.
func Default() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Server: ServerConfig{
			Addr:                ":8080",
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 30,
			MaxBodyBytes:        2 << 20,
		},
		Store: StoreConfig{
			Path: "./data/lists.db",
		},
		Feeds: FeedsConfig{
			UpdateInterval: 1,
			TimeoutSeconds: 30,
			Sources: []SourceConfig{
				{
					Name:         "urlhaus",
					URL:          "https://urlhaus.abuse.ch/downloads/csv_recent/",
					Format:       FormatCSV,
					TargetColumn: "2",
					Action:       ActionBlock,
				},
				{
					Name:         "phishtank",
					URL:          "https://data.phishtank.com/data/online-valid.csv.gz",
					Format:       FormatCSV,
					TargetColumn: "url",
					Compression:  CompressionGzip,
					Action:       ActionBlock,
				},
			},
		},
		Lists: ListsConfig{
			MaxRules: 5000,
		},
	}
}

// Load reads the config from path, or from PHISHGUARD_CONFIG, or from the
// first search path that exists. With no file at all it returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	if path == "" {
		for _, p := range searchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path == "" {
		slog.Info("config file not found, using built-in defaults")
		return Default(), nil
	}

	slog.Info("loading config", "path", path)
	return parseConfigFile(path)
}

func parseConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Decode over the defaults so omitted sections keep sane values.
	cfg := Default()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values a running service depends on.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.App.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("app.log_level: unknown level %q", c.App.LogLevel))
	}
	switch strings.ToLower(c.App.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("app.log_format: unknown format %q", c.App.LogFormat))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Feeds.UpdateInterval < 0 {
		errs = append(errs, errors.New("feeds.update_interval_hours must not be negative"))
	}

	seen := make(map[string]struct{}, len(c.Feeds.Sources))
	for i, src := range c.Feeds.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("feeds.sources[%d]: name is required", i))
		} else if _, dup := seen[src.Name]; dup {
			errs = append(errs, fmt.Errorf("feeds.sources[%d]: duplicate name %q", i, src.Name))
		}
		seen[src.Name] = struct{}{}

		if src.URL == "" {
			errs = append(errs, fmt.Errorf("feeds.sources[%d]: url is required", i))
		}
		switch src.Format {
		case FormatCSV:
			if strings.TrimSpace(src.TargetColumn) == "" {
				errs = append(errs, fmt.Errorf("feeds.sources[%d]: csv needs target_column", i))
			}
		case FormatText, FormatHosts, "":
		default:
			errs = append(errs, fmt.Errorf("feeds.sources[%d]: unknown format %q", i, src.Format))
		}
		switch src.EffectiveAction() {
		case ActionBlock, ActionAllow:
		default:
			errs = append(errs, fmt.Errorf("feeds.sources[%d]: unknown action %q", i, src.Action))
		}
		switch src.Compression {
		case "", CompressionGzip:
		default:
			errs = append(errs, fmt.Errorf("feeds.sources[%d]: unknown compression %q", i, src.Compression))
		}
	}

	return errors.Join(errs...)
}
