package atlas

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/atlasbake/pkg/atlas/cluster"
	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
	"github.com/matzehuels/atlasbake/pkg/atlas/merge"
	"github.com/matzehuels/atlasbake/pkg/atlas/skyline"
	"github.com/matzehuels/atlasbake/pkg/errors"
	"github.com/matzehuels/atlasbake/pkg/observability"
)

// Bake packs inputs into atlases. See the package documentation for the
// cycle structure. Cancellation is observed between cycles and inside merge
// tasks; a canceled bake returns no result.
func Bake(ctx context.Context, inputs []Input, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i, in := range inputs {
		if in.Size.Empty() {
			return nil, errors.New(errors.ErrCodeInvalidInput, "input %d (%s): size %v is empty", i, in.Source, in.Size)
		}
		// Size includes the margin on both sides; some content must remain.
		if m := 2 * cfg.Margin; in.Size.W <= m || in.Size.H <= m {
			return nil, errors.New(errors.ErrCodeInvalidInput, "input %d (%s): size %v leaves no room inside margin %d", i, in.Source, in.Size, cfg.Margin)
		}
	}

	b := &baker{
		cfg:     cfg,
		inputs:  inputs,
		scratch: newScratch(cfg.Debug),
		res:     &Result{Outputs: make([]Output, len(inputs))},
	}
	defer b.scratch.close()

	for i := range b.res.Outputs {
		b.res.Outputs[i].Atlas = -1
	}

	start := time.Now()
	pending := make([]int, len(inputs))
	for i := range pending {
		pending[i] = i
	}
	for cycle := 0; cycle < MaxCycles && len(pending) > 0; cycle++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCanceled, err, "bake canceled before cycle %d", cycle+1)
		}
		var err error
		if pending, err = b.cycle(ctx, cycle, pending); err != nil {
			return nil, err
		}
	}

	b.scratch.tracef("unplaced: %v", pending)
	b.res.Trace = b.scratch.trace
	b.cfg.Logger.Info("bake complete",
		"inputs", len(inputs),
		"atlases", len(b.res.Atlases),
		"unplaced", len(pending),
		"cycles", len(b.res.Cycles),
		"duration", time.Since(start))
	return b.res, nil
}

type baker struct {
	cfg     Config
	inputs  []Input
	scratch *scratch
	res     *Result
}

// packed is one group's pack outcome.
type packed struct {
	resolution int
	margin     int
	result     *skyline.PackResult
}

func (b *baker) progress(label string, done int) {
	if b.cfg.Progress == nil || len(b.inputs) == 0 {
		return
	}
	b.cfg.Progress(label, float64(done)/float64(len(b.inputs)))
}

// cycle runs one sort, pack, merge round over pending and returns the items
// that still need a home, in group order.
func (b *baker) cycle(ctx context.Context, cycle int, pending []int) ([]int, error) {
	start := time.Now()
	label := cycle + 1
	done := len(b.inputs) - len(pending)
	observability.Bake().OnCycleStart(ctx, cycle, len(pending))
	b.scratch.tracef("cycle %d: %d items", label, len(pending))

	b.progress(fmt.Sprintf("Sorting (Cycle %d)", label), done)
	items := make([]cluster.Item, len(pending))
	for k, id := range pending {
		in := b.inputs[id]
		items[k] = cluster.Item{ID: id, Point: in.Point, SortGroup: in.SortGroup, Size: in.Size}
		b.scratch.tracef("  input %d: %s size %v group %d point %v", id, in.Source, in.Size, in.SortGroup, in.Point)
	}
	sorted, err := cluster.Sort(items, b.cfg.clusterConfig())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "sort cycle %d", label)
	}
	for g, grp := range sorted.Groups {
		b.scratch.tracef("  group %d: resolution %d pixels %d items %d", g, grp.Resolution, grp.Pixels, len(grp.Items))
	}

	b.progress(fmt.Sprintf("Packing (Cycle %d)", label), done)
	packs, err := b.pack(ctx, sorted.Groups)
	if err != nil {
		return nil, err
	}
	canvases, err := b.merge(ctx, packs)
	if err != nil {
		return nil, err
	}

	stats := CycleStats{Cycle: cycle, Items: len(pending), Groups: len(packs)}
	merges := 0
	for _, p := range packs {
		if len(p.result.Placed) > 0 {
			merges++
		}
	}

	var failed []int
	for i, p := range packs {
		for _, r := range p.result.Failed {
			failed = append(failed, r.ID)
		}
		b.scratch.tracef("  group %d: placed %d failed %d steps %d skyline %v",
			i, len(p.result.Placed), len(p.result.Failed), p.result.Steps, p.result.Skyline)
		if len(p.result.Placed) == 0 {
			continue
		}

		index := len(b.res.Atlases)
		at := Atlas{
			Index:      index,
			Resolution: p.resolution,
			Margin:     p.margin,
			Cycle:      cycle,
			Placements: make([]skyline.Placement, len(p.result.Placed)),
			Image:      canvases[i],
		}
		for k, pl := range p.result.Placed {
			pl.Atlas = index
			at.Placements[k] = pl
			b.res.Outputs[pl.ID] = Output{Atlas: index, UV: merge.UV(pl, p.resolution, p.margin), Rotated: pl.Rotated}
		}
		done += len(p.result.Placed)
		stats.Placed += len(p.result.Placed)
		stats.Atlases++
		b.progress(fmt.Sprintf("Merging textures %d/%d (Cycle %d)", stats.Atlases, merges, label), done)

		if b.cfg.Sink != nil && at.Image != nil {
			asset, err := b.cfg.Sink.Persist(ctx, index, at.Image)
			if err != nil {
				b.scratch.release(canvases[i:]...)
				return nil, errors.Wrap(errors.ErrCodeImageIO, err, "persist atlas %d", index)
			}
			at.Asset = asset
			if !b.cfg.KeepImages {
				b.scratch.release(at.Image)
				at.Image = nil
			}
		}
		canvases[i] = nil
		b.res.Atlases = append(b.res.Atlases, at)
		observability.Bake().OnAtlasMerged(ctx, index, p.resolution, len(at.Placements))
	}

	stats.Failed = len(failed)
	stats.Duration = time.Since(start)
	b.res.Cycles = append(b.res.Cycles, stats)
	observability.Bake().OnCycleComplete(ctx, cycle, stats.Placed, stats.Failed, stats.Duration)
	b.cfg.Logger.Debug("cycle complete",
		"cycle", label,
		"items", stats.Items,
		"groups", stats.Groups,
		"atlases", stats.Atlases,
		"failed", stats.Failed,
		"duration", stats.Duration)
	return failed, nil
}

// pack places every group on the worker pool.
func (b *baker) pack(ctx context.Context, groups []cluster.Group) ([]packed, error) {
	out := make([]packed, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, grp := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			margin := b.cfg.margin(grp.Resolution)
			shrink := 2 * (b.cfg.Margin - margin)
			rects := make([]skyline.Rect, len(grp.Items))
			for k, it := range grp.Items {
				rects[k] = skyline.Rect{ID: it.ID, Size: geom.Size{W: it.Size.W - shrink, H: it.Size.H - shrink}}
			}
			res, err := skyline.Pack(rects, skyline.PackConfig{
				Size:                    grp.Resolution,
				Spread:                  int(float64(grp.Resolution) * b.cfg.SkylineSpread),
				OverhangWeight:          b.cfg.OverhangWeight,
				NeighborhoodWasteWeight: b.cfg.NeighborhoodWasteWeight,
				TopWasteWeight:          b.cfg.TopWasteWeight,
				Atlas:                   -1,
			})
			if err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "pack group %d", i)
			}
			out[i] = packed{resolution: grp.Resolution, margin: margin, result: res}
			observability.Bake().OnGroupPacked(gctx, grp.Resolution, len(res.Placed), len(res.Failed), time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.GetCode(err) == "" {
			return nil, errors.Wrap(errors.ErrCodeCanceled, err, "pack canceled")
		}
		return nil, err
	}
	return out, nil
}

// merge composites every group with at least one placement. The returned
// canvases are parallel to packs; groups without placements, or every group
// when no Sampler is configured, get nil.
func (b *baker) merge(ctx context.Context, packs []packed) ([]*image.NRGBA, error) {
	canvases := make([]*image.NRGBA, len(packs))
	if b.cfg.Sampler == nil {
		return canvases, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, p := range packs {
		if len(p.result.Placed) == 0 {
			continue
		}
		canvas := b.scratch.acquire(p.resolution)
		canvases[i] = canvas
		items := make([]merge.Item, len(p.result.Placed))
		for k, pl := range p.result.Placed {
			in := b.inputs[pl.ID]
			items[k] = merge.Item{Placement: pl, Source: in.Source, Crop: in.Crop}
		}
		g.Go(func() error {
			_, err := merge.Merge(gctx, items, merge.Config{
				Resolution: p.resolution,
				Margin:     p.margin,
				Sampler:    b.cfg.Sampler,
				Canvas:     canvas,
				Background: merge.DefaultBackground,
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		b.scratch.release(canvases...)
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeCanceled, err, "merge canceled")
		}
		return nil, errors.Wrap(errors.ErrCodeImageIO, err, "merge atlases")
	}
	return canvases, nil
}
