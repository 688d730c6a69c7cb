// Package cli implements the atlasbake command-line interface.
//
// # Commands
//
// The main commands are:
//   - bake: Pack the images of a manifest into atlases
//   - inspect: Summarise a baked result file
//   - tree: Render the cluster tree of a manifest as a diagram
//   - serve: Run the HTTP API
//   - history: List previous bakes
//   - cache: Manage the local result cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/atlasbake/pkg/buildinfo"
	"github.com/matzehuels/atlasbake/pkg/cache"
	"github.com/matzehuels/atlasbake/pkg/manifest"
	"github.com/matzehuels/atlasbake/pkg/pipeline"
	"github.com/matzehuels/atlasbake/pkg/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "atlasbake"

	// historyFile is the local bake history inside the data directory.
	historyFile = "history.jsonl"

	// configFile is the user defaults file inside the config directory.
	configFile = "config.toml"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
	LogWarn  = log.WarnLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
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
		Short:        "Atlasbake packs many images into a few texture atlases",
		Long:         `Atlasbake groups images by spatial locality, packs every group into a square atlas with a skyline packer and composites the atlases with bleed margins, reporting where each image landed.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.bakeCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.treeCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.historyCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use, backed by the local
// cache and history.
func (c *CLI) newRunner(noCache bool) (*pipeline.Runner, error) {
	ch, err := newCache(noCache)
	if err != nil {
		return nil, err
	}
	var st store.Store
	if fs, err := newHistory(); err != nil {
		c.Logger.Warn("bake history disabled", "error", err)
	} else {
		st = fs
	}
	return pipeline.NewRunner(ch, nil, st, c.Logger), nil
}

func newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

func newHistory() (*store.FileStore, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	return store.NewFileStore(filepath.Join(dir, historyFile))
}

// loadDefaults reads the user defaults file. A missing file yields empty
// settings; an explicit path must exist.
func loadDefaults(path string) (manifest.Settings, error) {
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return manifest.Settings{}, nil
		}
		path = filepath.Join(dir, configFile)
		if _, err := os.Stat(path); err != nil {
			return manifest.Settings{}, nil
		}
	}
	return manifest.LoadSettings(path)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/atlasbake/).
func cacheDir() (string, error) {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

// dataDir returns the data directory (~/.local/share/atlasbake/).
func dataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// configDir returns the config directory (~/.config/atlasbake/).
func configDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

func xdgDir(env, fallback string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback, appName), nil
}
