// Package config loads posterboard configuration.
//
// Values are layered: built-in defaults, then an optional TOML file, then
// POSTERBOARD_* environment variables. Command-line flags are applied last
// by the CLI. Call [Config.Validate] once all layers are in place.
//
// Example config.toml:
//
//	origin = "http://localhost:8000"
//	fetch_timeout = "10s"
//
//	[viewport]
//	width = 1440
//	height = 900
//
//	[cache]
//	ttl = "5m"
//
//	[[variants]]
//	name = "second"
//	route = "/second"
//	policy = "tiled"
//	path = "/posters_info2"
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/qqqlq/itf-ensyu/pkg/board"
	perrors "github.com/qqqlq/itf-ensyu/pkg/errors"
)

const (
	appName = "posterboard"

	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "POSTERBOARD_"

	DefaultOrigin = "http://localhost:8000"
	DefaultListen = ":8080"
)

// Dimensions is an optional width/height pair. The zero value means unset.
type Dimensions struct {
	Width  float64 `toml:"width" env:"WIDTH"`
	Height float64 `toml:"height" env:"HEIGHT"`
}

// IsZero reports whether both dimensions are unset.
func (d Dimensions) IsZero() bool { return d.Width == 0 && d.Height == 0 }

// Size converts d to a board size, or nil when unset.
func (d Dimensions) Size() *board.Size {
	if d.IsZero() {
		return nil
	}
	return &board.Size{Width: d.Width, Height: d.Height}
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	// TTL of cached poster info responses. Zero disables caching.
	TTL           time.Duration `toml:"ttl" env:"TTL"`
	Dir           string        `toml:"dir" env:"DIR"`
	RedisAddr     string        `toml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `toml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `toml:"redis_db" env:"REDIS_DB"`
}

// Variant is one board page: where it is served, how it lays cards out and
// which data path it loads.
type Variant struct {
	Name   string `toml:"name"`
	Route  string `toml:"route"`
	Policy string `toml:"policy"`
	Path   string `toml:"path"`
}

// LayoutPolicy returns the parsed layout policy.
func (v Variant) LayoutPolicy() board.Policy {
	p, err := board.ParsePolicy(v.Policy)
	if err != nil {
		return board.PolicyRandom
	}
	return p
}

// Config is the complete runtime configuration.
type Config struct {
	Origin       string        `toml:"origin" env:"ORIGIN"`
	Listen       string        `toml:"listen" env:"LISTEN"`
	Seed         uint64        `toml:"seed" env:"SEED"`
	FetchTimeout time.Duration `toml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	Viewport     Dimensions    `toml:"viewport" envPrefix:"VIEWPORT_"`
	Container    Dimensions    `toml:"container" envPrefix:"CONTAINER_"`
	Cache        CacheConfig   `toml:"cache" envPrefix:"CACHE_"`
	Variants     []Variant     `toml:"variants"`
}

// DefaultVariants returns the built-in board pages.
func DefaultVariants() []Variant {
	return []Variant{
		{Name: "default", Route: "/", Policy: string(board.PolicyRandom), Path: "/posters_info"},
		{Name: "first", Route: "/first", Policy: string(board.PolicyRandom), Path: "/posters_info"},
		{Name: "second", Route: "/second", Policy: string(board.PolicyTiled), Path: "/posters_info2"},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Origin:   DefaultOrigin,
		Listen:   DefaultListen,
		Viewport: Dimensions{Width: 1280, Height: 720},
		Variants: DefaultVariants(),
	}
}

// DefaultPath returns the XDG config file location
// (~/.config/posterboard/config.toml).
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// Load builds a configuration from defaults, the TOML file at path and the
// environment. An empty path tries DefaultPath and skips it when absent; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	required := path != ""
	if !required {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := cfg.loadFile(path, required); err != nil {
			return nil, err
		}
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	// Variants in the file replace the defaults rather than appending.
	var file Config
	md, err := toml.Decode(string(data), &file)
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return perrors.New(perrors.ErrCodeInvalidConfig, "%s: unknown key %q", path, undecoded[0].String())
	}
	c.merge(&file, md)
	return nil
}

// merge copies the keys present in the file over c.
func (c *Config) merge(f *Config, md toml.MetaData) {
	if md.IsDefined("origin") {
		c.Origin = f.Origin
	}
	if md.IsDefined("listen") {
		c.Listen = f.Listen
	}
	if md.IsDefined("seed") {
		c.Seed = f.Seed
	}
	if md.IsDefined("fetch_timeout") {
		c.FetchTimeout = f.FetchTimeout
	}
	if md.IsDefined("viewport") {
		c.Viewport = f.Viewport
	}
	if md.IsDefined("container") {
		c.Container = f.Container
	}
	if md.IsDefined("cache") {
		c.Cache = f.Cache
	}
	if md.IsDefined("variants") {
		c.Variants = f.Variants
	}
}

// ParseEnv overlays POSTERBOARD_* environment variables onto target.
// Unset variables leave fields untouched.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the board cannot run with.
func (c *Config) Validate() error {
	if err := perrors.ValidateURL(c.Origin); err != nil {
		return perrors.Wrap(perrors.ErrCodeInvalidConfig, err, "origin")
	}
	if c.FetchTimeout < 0 {
		return perrors.New(perrors.ErrCodeInvalidConfig, "fetch_timeout must not be negative")
	}
	if c.Cache.TTL < 0 {
		return perrors.New(perrors.ErrCodeInvalidConfig, "cache.ttl must not be negative")
	}
	if err := validateDimensions("viewport", c.Viewport); err != nil {
		return err
	}
	if err := validateDimensions("container", c.Container); err != nil {
		return err
	}
	if len(c.Variants) == 0 {
		return perrors.New(perrors.ErrCodeInvalidConfig, "at least one variant is required")
	}

	names := make(map[string]bool, len(c.Variants))
	routes := make(map[string]bool, len(c.Variants))
	for _, v := range c.Variants {
		if v.Name == "" {
			return perrors.New(perrors.ErrCodeInvalidConfig, "variant name cannot be empty")
		}
		if names[v.Name] {
			return perrors.New(perrors.ErrCodeInvalidConfig, "duplicate variant %q", v.Name)
		}
		names[v.Name] = true
		if v.Route != "" {
			if routes[v.Route] {
				return perrors.New(perrors.ErrCodeInvalidConfig, "variant %q: duplicate route %q", v.Name, v.Route)
			}
			routes[v.Route] = true
		}
		if _, err := board.ParsePolicy(v.Policy); err != nil {
			return perrors.Wrap(perrors.ErrCodeInvalidConfig, err, "variant %q", v.Name)
		}
		if err := perrors.ValidateDataPath(v.Path); err != nil {
			return perrors.Wrap(perrors.ErrCodeInvalidConfig, err, "variant %q", v.Name)
		}
	}
	return nil
}

func validateDimensions(name string, d Dimensions) error {
	if d.IsZero() {
		return nil
	}
	if !(d.Width > 0) || !(d.Height > 0) || math.IsInf(d.Width, 0) || math.IsInf(d.Height, 0) {
		return perrors.New(perrors.ErrCodeInvalidConfig, "%s must have finite positive width and height, got %vx%v", name, d.Width, d.Height)
	}
	return nil
}

// Variant looks a variant up by name.
func (c *Config) Variant(name string) (Variant, bool) {
	for _, v := range c.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// VariantNames lists the configured variant names in order.
func (c *Config) VariantNames() []string {
	names := make([]string, len(c.Variants))
	for i, v := range c.Variants {
		names[i] = v.Name
	}
	return names
}
