// Package cli implements the posterboard command-line interface.
//
// Commands load a board variant from the poster API and either print it,
// drive it interactively in the terminal, or serve it over HTTP. The CLI is
// built with cobra and logs through charmbracelet/log; --verbose switches to
// debug level, which also traces every loaded poster.
//
// # Commands
//
//   - board: load a variant and print its visible posters
//   - tags: print a variant's tag universe
//   - tui: interactive board (move, resize, filter)
//   - serve: HTTP API for all variants
//   - cache: manage the poster info response cache
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/qqqlq/itf-ensyu/pkg/board"
	"github.com/qqqlq/itf-ensyu/pkg/buildinfo"
	"github.com/qqqlq/itf-ensyu/pkg/cache"
	"github.com/qqqlq/itf-ensyu/pkg/config"
	"github.com/qqqlq/itf-ensyu/pkg/integrations/posters"
	"github.com/qqqlq/itf-ensyu/pkg/screen"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "posterboard"

	// defaultVariant is used when a command is given no variant argument.
	defaultVariant = "default"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
	LogFatal = log.FatalLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	origin     string
	noCache    bool
	refresh    bool
	cfg        *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Posterboard lays out and filters poster boards",
		Long:         `Posterboard loads poster metadata from a poster API, places each poster as a card on a board, and lets you move, resize and filter the cards by tag.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return c.loadConfig()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/posterboard/config.toml)")
	pf.StringVar(&c.origin, "origin", "", "poster API origin, e.g. http://localhost:8000")
	pf.BoolVar(&c.noCache, "no-cache", false, "disable the poster info response cache")
	pf.BoolVar(&c.refresh, "refresh", false, "re-fetch poster info and overwrite the cached copy")

	root.AddCommand(c.boardCommand())
	root.AddCommand(c.tagsCommand())
	root.AddCommand(c.tuiCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig layers the config file, environment and flags.
func (c *CLI) loadConfig() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.origin != "" {
		cfg.Origin = c.origin
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.Logger.Debug("config loaded", "origin", cfg.Origin, "variants", len(cfg.Variants))
	return nil
}

// config returns the loaded configuration, falling back to defaults for
// commands run without the root pre-run (tests).
func (c *CLI) config() *config.Config {
	if c.cfg == nil {
		c.cfg = config.Default()
	}
	return c.cfg
}

// =============================================================================
// Board Factory
// =============================================================================

// openBoard builds the poster client and screen for a variant. The caller
// runs the screen loop and closes the returned cache.
func (c *CLI) openBoard(ctx context.Context, name string) (*screen.Screen, *posters.Client, cache.Cache, error) {
	cfg := c.config()
	v, ok := cfg.Variant(name)
	if !ok {
		return nil, nil, nil, errUnknownVariant(name, cfg.VariantNames())
	}

	cc, err := c.newCache(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	client := posters.NewClient(cfg.Origin, v.Path, cc, cfg.Cache.TTL)
	return c.newScreen(v, c.catalogSource(client)), client, cc, nil
}

// catalogSource returns the client itself, or its cache-bypassing fetch
// when --refresh is set.
func (c *CLI) catalogSource(client *posters.Client) screen.Source {
	if c.refresh {
		return screen.SourceFunc(client.RefreshCatalog)
	}
	return client
}

func (c *CLI) newScreen(v config.Variant, src screen.Source) *screen.Screen {
	cfg := c.config()
	opts := []screen.Option{
		screen.WithLogger(c.Logger),
		screen.WithVariant(v.Name),
		screen.WithPolicy(v.LayoutPolicy()),
		screen.WithFetchTimeout(cfg.FetchTimeout),
	}
	if vp := cfg.Viewport.Size(); vp != nil {
		opts = append(opts, screen.WithViewport(*vp))
	}
	var engineOpts []board.Option
	if cfg.Seed != 0 {
		engineOpts = append(engineOpts, board.WithSeed(cfg.Seed))
	}
	if ct := cfg.Container.Size(); ct != nil {
		engineOpts = append(engineOpts, board.WithContainer(*ct))
	}
	return screen.New(src, append(opts, screen.WithEngineOptions(engineOpts...))...)
}

// newCache picks the response cache backend: none, Redis or files.
func (c *CLI) newCache(ctx context.Context) (cache.Cache, error) {
	cfg := c.config()
	if c.noCache || cfg.Cache.TTL == 0 {
		return cache.NewNullCache(), nil
	}
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	}
	dir := cfg.Cache.Dir
	if dir == "" {
		d, err := cacheDir()
		if err != nil {
			c.Logger.Warn("no cache directory, caching disabled", "err", err)
			return cache.NewNullCache(), nil
		}
		dir = d
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/posterboard/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
