// Package pipeline runs a complete bake for the CLI and the API server.
//
// This package implements the load → bake → persist pipeline that every
// entry point shares, so a manifest baked from the command line and one
// posted to the server produce the same atlases and hit the same cache.
//
// # Architecture
//
// The pipeline consists of four stages:
//
//  1. Load: parse the manifest and derive pixel sizes from the sources
//  2. Join: collapse duplicate inputs so each image is packed once
//  3. Bake: run the packing engine (package atlas)
//  4. Persist: cache the result, write files, record history
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, store, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Manifest:  "scene.toml",
//	    OutputDir: "out",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range result.Entries {
//	    // e.Source, e.Atlas, e.UV
//	}
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/atlasbake/pkg/atlas"
	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
	"github.com/matzehuels/atlasbake/pkg/atlas/skyline"
	"github.com/matzehuels/atlasbake/pkg/cache"
	"github.com/matzehuels/atlasbake/pkg/errors"
	"github.com/matzehuels/atlasbake/pkg/manifest"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultPrefix names output files: <prefix>_<n>.png and <prefix>.json.
	DefaultPrefix = "atlas"

	// DefaultJoinDuplicates collapses identical inputs before packing.
	DefaultJoinDuplicates = true
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for one pipeline run.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Manifest is the path of the manifest file.
	Manifest string `json:"manifest,omitempty"`
	// ManifestData is an in-memory manifest, used instead of Manifest.
	ManifestData []byte `json:"-"`
	// ManifestFormat is the encoding of ManifestData.
	ManifestFormat manifest.Format `json:"manifest_format,omitempty"`
	// Root is the directory sources resolve against. It defaults to the
	// manifest's directory.
	Root string `json:"root,omitempty"`

	// Defaults sit below the manifest's own settings.
	Defaults manifest.Settings `json:"defaults"`
	// Overrides take precedence over the manifest's own settings.
	Overrides manifest.Settings `json:"settings"`

	OutputDir  string `json:"output_dir,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
	LayoutOnly bool   `json:"layout_only,omitempty"` // Pack only, write no images
	Refresh    bool   `json:"refresh,omitempty"`     // Ignore cached results
	Workers    int    `json:"workers,omitempty"`
	Debug      bool   `json:"debug,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`
	// Progress receives engine progress updates.
	Progress atlas.ProgressFunc `json:"-"`
	// RestrictSources rejects absolute and escaping source paths. The
	// server sets it for posted manifests.
	RestrictSources bool `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// ID identifies the bake in the cache and the history.
	ID string `json:"id"`
	// InputHash is the content hash of the prepared inputs and sources.
	InputHash string `json:"input_hash"`
	Manifest  string `json:"manifest,omitempty"`
	// Entries is parallel to the manifest items.
	Entries []Entry            `json:"entries"`
	Atlases []AtlasInfo        `json:"atlases"`
	Cycles  []atlas.CycleStats `json:"cycles"`
	Trace   []string           `json:"trace,omitempty"`
	Stats   Stats              `json:"stats"`

	// Cached reports that the result came from the cache.
	Cached bool `json:"-"`
	// Images holds the encoded atlases keyed by index.
	Images map[int][]byte `json:"-"`
	// Files lists what was written to the output directory.
	Files []string `json:"-"`
}

// Entry is one manifest item and where it landed.
type Entry struct {
	Source    string    `json:"source"`
	SortGroup int       `json:"sort_group"`
	Size      geom.Size `json:"size"`
	atlas.Output
}

// AtlasInfo describes one atlas of a result.
type AtlasInfo struct {
	Index      int                 `json:"index"`
	File       string              `json:"file,omitempty"`
	Resolution int                 `json:"resolution"`
	Margin     int                 `json:"margin"`
	Cycle      int                 `json:"cycle"`
	Placements []skyline.Placement `json:"placements"`
}

// Coverage returns the fraction of the atlas covered by placements.
func (a AtlasInfo) Coverage() float64 {
	if a.Resolution == 0 {
		return 0
	}
	area := 0
	for _, p := range a.Placements {
		area += p.Size.Area()
	}
	return float64(area) / float64(a.Resolution*a.Resolution)
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Inputs   int           `json:"inputs"`
	Unique   int           `json:"unique"`
	Placed   int           `json:"placed"`
	Unplaced int           `json:"unplaced"`
	Atlases  int           `json:"atlases"`
	LoadTime time.Duration `json:"load_time"`
	BakeTime time.Duration `json:"bake_time"`
}

// Unplaced returns the entries that did not make it into an atlas.
func (r *Result) Unplaced() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if !e.Placed() {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Manifest == "" && len(o.ManifestData) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "manifest is required")
	}
	if len(o.ManifestData) > 0 && o.ManifestFormat == "" {
		o.ManifestFormat = manifest.FormatJSON
	}
	if o.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "workers must not be negative, got %d", o.Workers)
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// Settings layers the defaults, the manifest's settings and the overrides,
// later wins.
func (o *Options) Settings(m *manifest.Manifest) manifest.Settings {
	return o.Defaults.Merge(m.Settings).Merge(o.Overrides)
}

// EngineConfig builds the engine configuration for settings s.
func (o *Options) EngineConfig(s manifest.Settings) (atlas.Config, error) {
	cfg := atlas.DefaultConfig()
	s.Apply(&cfg)
	cfg.Workers = o.Workers
	cfg.Debug = o.Debug
	cfg.Progress = o.Progress
	cfg.Logger = o.Logger
	if err := cfg.Validate(); err != nil {
		return atlas.Config{}, err
	}
	return cfg, nil
}

// JoinDuplicates reports whether duplicate inputs are collapsed under s.
func JoinDuplicates(s manifest.Settings) bool {
	if s.JoinDuplicates != nil {
		return *s.JoinDuplicates
	}
	return DefaultJoinDuplicates
}

// BakeKeyOpts returns cache key options for a bake with cfg.
func (o *Options) BakeKeyOpts(cfg atlas.Config, join bool) cache.BakeKeyOpts {
	return cache.BakeKeyOpts{
		AtlasSize:               cfg.AtlasSize,
		Margin:                  cfg.Margin,
		ScaleMargin:             cfg.ScaleMargin,
		TextureFit:              cfg.TextureFit,
		SkylineSpread:           cfg.SkylineSpread,
		PackEfficiency:          cfg.PackEfficiency,
		OverhangWeight:          cfg.OverhangWeight,
		NeighborhoodWasteWeight: cfg.NeighborhoodWasteWeight,
		TopWasteWeight:          cfg.TopWasteWeight,
		JoinDuplicates:          join,
		LayoutOnly:              o.LayoutOnly,
		Trace:                   o.Debug,
	}
}
