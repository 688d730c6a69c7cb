package cli

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/matzehuels/atlasbake/pkg/atlas"
	"github.com/matzehuels/atlasbake/pkg/imageio"
	"github.com/matzehuels/atlasbake/pkg/manifest"
	"github.com/matzehuels/atlasbake/pkg/pipeline"
)

// bakeFlags holds the flags of the bake command.
type bakeFlags struct {
	output     string
	prefix     string
	root       string
	config     string
	layoutOnly bool
	refresh    bool
	noCache    bool
	noTUI      bool
	overlay    bool
	workers    int
	trace      bool

	atlasSize      int
	margin         int
	noScaleMargin  bool
	textureFit     float64
	spread         float64
	efficiency     float64
	overhangWeight float64
	wasteWeight    float64
	topWeight      float64
	noJoin         bool
	maxMajorSize   int
}

// bakeCommand creates the bake command.
func (c *CLI) bakeCommand() *cobra.Command {
	var f bakeFlags

	cmd := &cobra.Command{
		Use:   "bake <manifest>",
		Short: "Pack the images of a manifest into texture atlases",
		Long: `Bake reads a TOML or JSON manifest, packs its images into square atlases and
writes the atlases as PNG together with a JSON file that maps every item to
its atlas and UV window.

Settings are resolved in this order, later wins: built-in defaults, the user
config file, the manifest's [settings] table, command-line flags.`,
		Example: `  atlasbake bake scene.toml -o out
  atlasbake bake scene.toml --atlas-size 2048 --margin 8 --layout-only`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBake(cmd, args[0], f)
		},
	}

	f.bind(cmd)
	return cmd
}

// bind registers the bake flags on cmd.
func (f *bakeFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "output directory (default: <manifest dir>/atlases)")
	fl.StringVar(&f.prefix, "prefix", pipeline.DefaultPrefix, "output file name prefix")
	fl.StringVar(&f.root, "root", "", "directory sources resolve against (default: manifest dir)")
	fl.StringVar(&f.config, "config", "", "defaults file (default: ~/.config/atlasbake/config.toml)")
	fl.BoolVar(&f.layoutOnly, "layout-only", false, "compute the layout without compositing images")
	fl.BoolVar(&f.refresh, "refresh", false, "ignore cached results")
	fl.BoolVar(&f.noCache, "no-cache", false, "disable the result cache")
	fl.BoolVar(&f.noTUI, "no-tui", false, "show a one-line spinner instead of the progress bar")
	fl.BoolVar(&f.overlay, "overlay", false, "also write placement overlays (<prefix>_<n>_overlay.png)")
	fl.IntVar(&f.workers, "workers", 0, "concurrent pack and merge tasks (default: number of CPUs)")
	fl.BoolVar(&f.trace, "trace", false, "write a step by step trace (<prefix>_trace.txt)")

	fl.IntVar(&f.atlasSize, "atlas-size", atlas.DefaultAtlasSize, "largest atlas side, a power of two")
	fl.IntVar(&f.margin, "margin", atlas.DefaultMargin, "bleed around every item at full atlas size")
	fl.BoolVar(&f.noScaleMargin, "no-scale-margin", false, "keep the full margin in smaller atlases")
	fl.Float64Var(&f.textureFit, "texture-fit", atlas.DefaultTextureFit, "weight of atlas fill against locality when sorting")
	fl.Float64Var(&f.spread, "spread", atlas.DefaultSkylineSpread, "how far above the lowest span items may reach, as a fraction")
	fl.Float64Var(&f.efficiency, "efficiency", atlas.DefaultPackEfficiency, "expected fill ratio of a packed atlas")
	fl.Float64Var(&f.overhangWeight, "overhang-weight", atlas.DefaultOverhangWeight, "skyline overhang penalty")
	fl.Float64Var(&f.wasteWeight, "waste-weight", atlas.DefaultNeighborhoodWasteWeight, "skyline neighbourhood waste penalty")
	fl.Float64Var(&f.topWeight, "top-weight", atlas.DefaultTopWasteWeight, "skyline top waste penalty")
	fl.BoolVar(&f.noJoin, "no-join", false, "pack duplicate items separately")
	fl.IntVar(&f.maxMajorSize, "max-major-size", manifest.DefaultMaxMajorSize, "cap for the larger side of derived item sizes")
}

// overrides collects the settings whose flags were set explicitly.
func (f bakeFlags) overrides(cmd *cobra.Command) manifest.Settings {
	var s manifest.Settings
	changed := cmd.Flags().Changed
	if changed("atlas-size") {
		s.AtlasSize = &f.atlasSize
	}
	if changed("margin") {
		s.Margin = &f.margin
	}
	if changed("no-scale-margin") {
		v := !f.noScaleMargin
		s.ScaleMargin = &v
	}
	if changed("texture-fit") {
		s.TextureFit = &f.textureFit
	}
	if changed("spread") {
		s.SkylineSpread = &f.spread
	}
	if changed("efficiency") {
		s.PackEfficiency = &f.efficiency
	}
	if changed("overhang-weight") {
		s.OverhangWeight = &f.overhangWeight
	}
	if changed("waste-weight") {
		s.NeighborhoodWasteWeight = &f.wasteWeight
	}
	if changed("top-weight") {
		s.TopWasteWeight = &f.topWeight
	}
	if changed("no-join") {
		v := !f.noJoin
		s.JoinDuplicates = &v
	}
	if changed("max-major-size") {
		s.MaxMajorSize = &f.maxMajorSize
	}
	return s
}

func (c *CLI) runBake(cmd *cobra.Command, path string, f bakeFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	defaults, err := loadDefaults(f.config)
	if err != nil {
		return err
	}

	runner, err := c.newRunner(f.noCache)
	if err != nil {
		return err
	}
	defer runner.Close(context.Background())

	out := f.output
	if out == "" {
		out = filepath.Join(filepath.Dir(path), "atlases")
	}
	opts := pipeline.Options{
		Manifest:   path,
		Root:       f.root,
		Defaults:   defaults,
		Overrides:  f.overrides(cmd),
		OutputDir:  out,
		Prefix:     f.prefix,
		LayoutOnly: f.layoutOnly,
		Refresh:    f.refresh,
		Workers:    f.workers,
		Debug:      f.trace,
		Logger:     c.Logger,
	}

	sw := newStopwatch(c.Logger)
	run := func(ctx context.Context, progress atlas.ProgressFunc) (*pipeline.Result, error) {
		o := opts
		o.Progress = progress
		return runner.Execute(ctx, o)
	}

	var res *pipeline.Result
	switch {
	case !f.noTUI && isatty.IsTerminal(os.Stderr.Fd()):
		res, err = runWithProgressBar(ctx, os.Stderr, "Baking "+filepath.Base(path), run)
	default:
		res, err = runWithSpinner(ctx, os.Stderr, run)
	}
	if err != nil {
		printError("Bake failed")
		return err
	}

	if f.overlay {
		files, err := writeOverlays(out, f.prefix, res)
		if err != nil {
			return err
		}
		res.Files = append(res.Files, files...)
	}

	printSuccess("Baked %s into %s", filepath.Base(path), plural(len(res.Atlases), "atlas"))
	printStats(res.Stats, res.Cached)
	for _, file := range res.Files {
		printFile(file)
	}
	for _, e := range res.Unplaced() {
		printWarning("%s (%v) did not fit", e.Source, e.Size)
	}
	c.Logger.Debug("bake timing", "load", res.Stats.LoadTime, "bake", res.Stats.BakeTime, "total", sw.elapsed())
	printNextStep("Inspect the result", fmt.Sprintf("%s inspect %s", appName, filepath.Join(out, f.prefix+".json")))
	return nil
}

// writeOverlays draws every placement over its atlas, or over a blank
// canvas for layout-only bakes, and writes the result next to the atlases.
func writeOverlays(dir, prefix string, res *pipeline.Result) ([]string, error) {
	var files []string
	for _, info := range res.Atlases {
		var base image.Image
		if data, ok := res.Images[info.Index]; ok {
			img, _, err := imageio.Decode(data, ".png")
			if err != nil {
				return nil, err
			}
			base = img
		}
		img := imageio.Overlay(atlasOf(info), base)
		enc, err := imageio.EncodePNG(img)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%d_overlay.png", prefix, info.Index))
		if err := os.WriteFile(path, enc, 0o644); err != nil {
			return nil, fmt.Errorf("write overlay: %w", err)
		}
		files = append(files, path)
	}
	return files, nil
}

func atlasOf(info pipeline.AtlasInfo) atlas.Atlas {
	return atlas.Atlas{
		Index:      info.Index,
		Resolution: info.Resolution,
		Margin:     info.Margin,
		Cycle:      info.Cycle,
		Placements: info.Placements,
	}
}
