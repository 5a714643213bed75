package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

const envPrefix = "COMPRESOLVER_"

// Config represents the top-level application config plus the resolved
// identifier layout and algorithm catalog.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Store      StoreConfig      `koanf:"store"`
	Resolver   ResolverConfig   `koanf:"resolver"`
	Algorithms AlgorithmsConfig `koanf:"algorithms"`
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`

	// Layout and Catalog are populated by Load.
	Layout  *tsid.Layout                        `koanf:"-"`
	Catalog *comp.FileSystemAlgorithmRepository `koanf:"-"`
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// StoreConfig selects where computation metadata lives.
type StoreConfig struct {
	Type         string `koanf:"type"` // postgres | snapshot
	SnapshotPath string `koanf:"snapshot_path"`
}

type ResolverConfig struct {
	Parts         []string          `koanf:"parts"`
	Aliases       map[string]string `koanf:"aliases"`
	ApplicationID int64             `koanf:"application_id"`
	Dispose       string            `koanf:"dispose"` // delete | disable
	ReportPath    string            `koanf:"report_path"`
	DisposedPath  string            `koanf:"disposed_path"`
	TestMode      bool              `koanf:"test_mode"`
}

// AlgorithmsConfig points at YAML algorithm definitions that override the
// store's algorithm table. Empty means use the store only.
type AlgorithmsConfig struct {
	Dir string `koanf:"dir"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
	// ReloadInterval refreshes the preview context periodically. Zero disables it.
	ReloadInterval time.Duration `koanf:"reload_interval"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// SlogLevel maps log.level onto slog. Unknown values were rejected by Validate.
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *Config) Validate() error {
	switch c.Store.Type {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
		if c.Database.Type != "" && c.Database.Type != "postgres" {
			return fmt.Errorf("unsupported database.type %q", c.Database.Type)
		}
	case "snapshot":
		if strings.TrimSpace(c.Store.SnapshotPath) == "" {
			return fmt.Errorf("store.snapshot_path is required for the snapshot store")
		}
		if _, err := os.Stat(os.ExpandEnv(c.Store.SnapshotPath)); err != nil {
			return fmt.Errorf("store.snapshot_path %q is not accessible: %w", c.Store.SnapshotPath, err)
		}
	default:
		return fmt.Errorf("unsupported store.type %q (must be postgres or snapshot)", c.Store.Type)
	}

	if len(c.Resolver.Parts) == 0 {
		return fmt.Errorf("resolver.parts must name at least one identifier part")
	}
	if c.Resolver.ApplicationID < 0 {
		return fmt.Errorf("resolver.application_id must be >= 0")
	}
	switch strings.ToLower(c.Resolver.Dispose) {
	case "delete", "disable":
	default:
		return fmt.Errorf("invalid resolver.dispose %q (must be delete or disable)", c.Resolver.Dispose)
	}
	if strings.TrimSpace(c.Resolver.ReportPath) == "" {
		return fmt.Errorf("resolver.report_path is required")
	}
	if strings.TrimSpace(c.Resolver.DisposedPath) == "" {
		return fmt.Errorf("resolver.disposed_path is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}
	if c.Server.ReloadInterval < 0 {
		return fmt.Errorf("server.reload_interval must be >= 0")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}

	return nil
}

// defaultAliases keeps the site/datatype/statcode aliases whose target part
// exists in parts.
func defaultAliases(parts []string) map[string]string {
	out := make(map[string]string)
	for alias, target := range map[string]string{"site": "Location", "datatype": "Param", "statcode": "ParamType"} {
		for _, p := range parts {
			if strings.EqualFold(p, target) {
				out[alias] = p
			}
		}
	}
	return out
}

// Load parses config from defaults, file and env, validates it, then builds
// the identifier layout and loads the algorithm catalog.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"database.type":           "postgres",
		"database.dsn":            "postgres://localhost:5432/compresolver?sslmode=disable",
		"database.max_open_conns": 10,
		"database.max_idle_conns": 5,
		"database.auto_migrate":   false,
		"store.type":              "postgres",
		"store.snapshot_path":     "",
		"resolver.parts":          tsid.DefaultLayout().Parts(),
		"resolver.application_id": 0,
		"resolver.dispose":        "disable",
		"resolver.report_path":    "convert2group-report.txt",
		"resolver.disposed_path":  "disposed-comps.xml",
		"resolver.test_mode":      false,
		"algorithms.dir":          "",
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.mode":             "release",
		"server.reload_interval":  "0s",
		"log.level":               "info",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(cfg.Resolver.Aliases) == 0 {
		cfg.Resolver.Aliases = defaultAliases(cfg.Resolver.Parts)
	}
	layout, err := tsid.NewLayout(cfg.Resolver.Parts, cfg.Resolver.Aliases)
	if err != nil {
		return nil, fmt.Errorf("invalid resolver.parts: %w", err)
	}
	cfg.Layout = layout

	if cfg.Algorithms.Dir != "" {
		repo, err := comp.NewFileSystemAlgorithmRepository(os.ExpandEnv(cfg.Algorithms.Dir))
		if err != nil {
			return nil, fmt.Errorf("failed to load algorithms: %w", err)
		}
		cfg.Catalog = repo
	}

	return &cfg, nil
}
