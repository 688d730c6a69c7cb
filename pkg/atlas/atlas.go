// Package atlas bakes many independently sized images into a small set of
// square atlas textures.
//
// # Overview
//
// [Bake] runs up to [MaxCycles] cycles. Each cycle:
//
//  1. Sort: clusters the pending items into groups with a target resolution
//     (package cluster).
//  2. Pack: places every group into its own bin on a worker pool
//     (package skyline).
//  3. Merge: composites every group that placed at least one item into an
//     atlas image on the same pool (package merge).
//
// Items a group could not place are sorted again in the next cycle, where
// they meet fresh bins. Items still unplaced after the last cycle get an
// [Output] with Atlas set to -1; that is a result, not an error.
//
// # Usage
//
//	cfg := atlas.DefaultConfig()
//	cfg.Sampler = imageio.NewFileSampler(root)
//	cfg.Sink = imageio.NewDirSink(outDir, "atlas")
//	res, err := atlas.Bake(ctx, inputs, cfg)
//	for i, out := range res.Outputs {
//	    // out.Atlas, out.UV for inputs[i]
//	}
package atlas

import (
	"context"
	"image"
	"io"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/atlasbake/pkg/atlas/cluster"
	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
	"github.com/matzehuels/atlasbake/pkg/atlas/merge"
	"github.com/matzehuels/atlasbake/pkg/atlas/skyline"
	"github.com/matzehuels/atlasbake/pkg/errors"
)

// MaxCycles bounds the number of sort, pack, merge rounds.
const MaxCycles = 4

// Default tuning values.
const (
	DefaultAtlasSize               = 4096
	DefaultMargin                  = 32
	DefaultTextureFit              = 0.15
	DefaultSkylineSpread           = 0.25
	DefaultPackEfficiency          = 0.85
	DefaultOverhangWeight          = 7
	DefaultNeighborhoodWasteWeight = 3
	DefaultTopWasteWeight          = 1
)

// Input is one image to place.
type Input struct {
	// Source identifies the image for the Sampler.
	Source string
	// Point locates the item in 3D; nearby items tend to share an atlas.
	Point mgl32.Vec3
	// SortGroup separates items that must never share an atlas.
	SortGroup int
	// Crop is the window of the source to bake.
	Crop geom.UVRect
	// Size is the packed size, margin included on every side.
	Size geom.Size
}

// Output is where an input landed. Atlas is -1 for items that were never
// placed.
type Output struct {
	Atlas   int         `json:"atlas"`
	UV      geom.UVRect `json:"uv"`
	Rotated bool        `json:"rotated"`
}

// Placed reports whether the item made it into an atlas.
func (o Output) Placed() bool { return o.Atlas >= 0 }

// Atlas is one baked texture.
type Atlas struct {
	Index      int                 `json:"index"`
	Resolution int                 `json:"resolution"`
	Margin     int                 `json:"margin"`
	Cycle      int                 `json:"cycle"`
	Placements []skyline.Placement `json:"placements"`
	// Asset is what the Sink returned for this atlas.
	Asset string `json:"asset,omitempty"`
	// Image is the composited texture. It is nil when no Sampler was
	// configured, or when a Sink persisted it and KeepImages is off.
	Image *image.NRGBA `json:"-"`
}

// Sink persists finished atlases.
type Sink interface {
	Persist(ctx context.Context, index int, img image.Image) (string, error)
}

// ProgressFunc receives a status label and the fraction of items handled.
type ProgressFunc func(label string, fraction float64)

// CycleStats summarises one cycle.
type CycleStats struct {
	Cycle    int           `json:"cycle"`
	Items    int           `json:"items"`
	Groups   int           `json:"groups"`
	Atlases  int           `json:"atlases"`
	Placed   int           `json:"placed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of [Bake].
type Result struct {
	// Outputs is parallel to the inputs.
	Outputs []Output
	Atlases []Atlas
	Cycles  []CycleStats
	// Trace holds a step by step log when Config.Debug is set.
	Trace []string
}

// Unplaced returns the indices of inputs that did not make it into an atlas.
func (r *Result) Unplaced() []int {
	var out []int
	for i, o := range r.Outputs {
		if !o.Placed() {
			out = append(out, i)
		}
	}
	return out
}

// Config controls a bake.
type Config struct {
	// AtlasSize is the largest atlas side, a power of two.
	AtlasSize int
	// Margin is the bleed around every item at AtlasSize, in pixels.
	Margin int
	// ScaleMargin shrinks the margin proportionally in smaller atlases.
	ScaleMargin bool
	// TextureFit weighs atlas fill against spatial locality while sorting.
	TextureFit float64
	// SkylineSpread is how far above the lowest span an item may reach,
	// as a fraction of the atlas side.
	SkylineSpread float64
	// PackEfficiency is the expected fill ratio of a packed atlas, in (0,1].
	PackEfficiency float64

	OverhangWeight          float64
	NeighborhoodWasteWeight float64
	TopWasteWeight          float64

	// Workers bounds concurrent pack and merge tasks. Zero means GOMAXPROCS.
	Workers int

	// Sampler provides source pixels. Without one the bake computes the
	// layout only.
	Sampler merge.Sampler
	// Sink persists each atlas as soon as it is merged.
	Sink Sink
	// KeepImages keeps persisted atlas images in the result.
	KeepImages bool
	// Progress is called synchronously from the calling goroutine.
	Progress ProgressFunc
	Logger   *log.Logger
	// Debug records a textual trace in Result.Trace.
	Debug bool
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		AtlasSize:               DefaultAtlasSize,
		Margin:                  DefaultMargin,
		ScaleMargin:             true,
		TextureFit:              DefaultTextureFit,
		SkylineSpread:           DefaultSkylineSpread,
		PackEfficiency:          DefaultPackEfficiency,
		OverhangWeight:          DefaultOverhangWeight,
		NeighborhoodWasteWeight: DefaultNeighborhoodWasteWeight,
		TopWasteWeight:          DefaultTopWasteWeight,
	}
}

// Validate checks the configuration and fills in Workers and Logger.
func (c *Config) Validate() error {
	if c.AtlasSize < cluster.MinResolution || c.AtlasSize&(c.AtlasSize-1) != 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "atlas size %d must be a power of two >= %d", c.AtlasSize, cluster.MinResolution)
	}
	if c.Margin < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "margin %d must not be negative", c.Margin)
	}
	if 2*c.Margin >= c.AtlasSize {
		return errors.New(errors.ErrCodeInvalidConfig, "margin %d leaves no room in a %d atlas", c.Margin, c.AtlasSize)
	}
	if c.PackEfficiency <= 0 || c.PackEfficiency > 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "pack efficiency %g must be in (0,1]", c.PackEfficiency)
	}
	if c.SkylineSpread < 0 || c.TextureFit < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "spread and texture fit must not be negative")
	}
	if c.OverhangWeight < 0 || c.NeighborhoodWasteWeight < 0 || c.TopWasteWeight < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "skyline weights must not be negative")
	}
	if c.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "workers %d must not be negative", c.Workers)
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Logger == nil {
		c.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// PixelBudget is the pixel area a full-size atlas is expected to hold.
func (c *Config) PixelBudget() int {
	return int(float64(c.AtlasSize) * float64(c.AtlasSize) * c.PackEfficiency)
}

// margin returns the bleed for an atlas of side res.
func (c *Config) margin(res int) int {
	if !c.ScaleMargin {
		return c.Margin
	}
	return merge.ScaleMargin(c.Margin, c.AtlasSize, res)
}
