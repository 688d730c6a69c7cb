// Package merge composites packed placements into an atlas image and
// computes the UV rectangle each item occupies in it.
//
// Each placement's crop window is sampled from its source, scaled to the
// content size (the packed size minus the margin on every side), rotated a
// quarter turn counter-clockwise when the packer rotated it, and written into
// the atlas with its edge pixels repeated outward across the margin.
package merge

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"

	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
	"github.com/matzehuels/atlasbake/pkg/atlas/skyline"
)

// Sampler reads a crop window out of a source image.
type Sampler interface {
	Sample(ctx context.Context, source string, window geom.UVRect) (image.Image, error)
}

// Item is one placement to composite.
type Item struct {
	Placement skyline.Placement
	Source    string
	Crop      geom.UVRect
}

// Config controls one merge.
type Config struct {
	// Resolution is the atlas side.
	Resolution int
	// Margin is the bleed in atlas pixels, already scaled to Resolution.
	Margin int
	// Sampler provides source pixels.
	Sampler Sampler
	// Canvas, when set, is drawn into instead of a fresh image. It must be
	// Resolution pixels square.
	Canvas *image.NRGBA
	// Background fills the canvas before compositing.
	Background color.NRGBA
	// Scaler resamples crop windows. Defaults to Catmull-Rom.
	Scaler draw.Scaler
}

// DefaultBackground is opaque black.
var DefaultBackground = color.NRGBA{A: 0xff}

// Merge composites items into one atlas image.
func Merge(ctx context.Context, items []Item, cfg Config) (*image.NRGBA, error) {
	if cfg.Sampler == nil {
		return nil, fmt.Errorf("merge: no sampler")
	}
	bounds := image.Rect(0, 0, cfg.Resolution, cfg.Resolution)
	dst := cfg.Canvas
	if dst == nil {
		dst = image.NewNRGBA(bounds)
	} else if dst.Bounds() != bounds {
		return nil, fmt.Errorf("merge: canvas %v does not match resolution %d", dst.Bounds(), cfg.Resolution)
	}
	scaler := cfg.Scaler
	if scaler == nil {
		scaler = draw.CatmullRom
	}
	fill(dst, cfg.Background)

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := composite(ctx, dst, it, cfg, scaler); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func composite(ctx context.Context, dst *image.NRGBA, it Item, cfg Config, scaler draw.Scaler) error {
	p := it.Placement
	content := geom.Size{W: p.Size.W - 2*cfg.Margin, H: p.Size.H - 2*cfg.Margin}
	if content.Empty() {
		return fmt.Errorf("merge: item %d: %v placement leaves no room inside margin %d", p.ID, p.Size, cfg.Margin)
	}
	src, err := cfg.Sampler.Sample(ctx, it.Source, it.Crop)
	if err != nil {
		return fmt.Errorf("merge: sample %s: %w", it.Source, err)
	}

	upright := content
	if p.Rotated {
		upright = content.Swap()
	}
	scaled := image.NewNRGBA(image.Rect(0, 0, upright.W, upright.H))
	scaler.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Src, nil)
	if p.Rotated {
		scaled = imaging.Rotate90(scaled)
	}

	bleed(dst, scaled, p.Bounds().Image(cfg.Resolution), cfg.Margin)
	return nil
}

// bleed writes content into tile, centred inside margin, and clamps every
// tile pixel outside the content to the nearest content edge.
func bleed(dst, content *image.NRGBA, tile image.Rectangle, margin int) {
	cw, ch := content.Rect.Dx(), content.Rect.Dy()
	for ty := 0; ty < tile.Dy(); ty++ {
		sy := min(max(ty-margin, 0), ch-1)
		srow := content.Pix[sy*content.Stride:]
		drow := dst.Pix[dst.PixOffset(tile.Min.X, tile.Min.Y+ty):]
		for tx := 0; tx < tile.Dx(); tx++ {
			sx := min(max(tx-margin, 0), cw-1)
			copy(drow[tx*4:tx*4+4], srow[sx*4:sx*4+4])
		}
	}
}

func fill(img *image.NRGBA, c color.NRGBA) {
	px := []uint8{c.R, c.G, c.B, c.A}
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:i+4], px)
	}
}

// ScaleMargin converts a margin given for an atlas of side base to an atlas
// of side res. A non-zero margin never scales to zero.
func ScaleMargin(margin, base, res int) int {
	if base <= 0 {
		return margin
	}
	m := margin * res / base
	if m == 0 && margin != 0 {
		return 1
	}
	return m
}

// UV returns the window a placement's content occupies in an atlas of side
// res with the given margin.
func UV(p skyline.Placement, res, margin int) geom.UVRect {
	r := float32(res)
	lo := mgl32.Vec2{float32(p.X+margin) / r, float32(p.Y+margin) / r}
	ext := mgl32.Vec2{float32(p.Size.W-2*margin) / r, float32(p.Size.H-2*margin) / r}
	return geom.UVRect{Min: lo, Max: lo.Add(ext)}
}
