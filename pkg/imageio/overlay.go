package imageio

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/matzehuels/atlasbake/pkg/atlas"
)

// goldenAngle spreads consecutive hues around the wheel.
const goldenAngle = 137.50776405

// ItemColor returns a stable, well separated colour for an item id.
func ItemColor(id int) color.NRGBA {
	h := math.Mod(float64(id)*goldenAngle, 360)
	c := colorful.Hcl(h, 0.55, 0.7).Clamped()
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// Overlay draws each placement of at as a translucent tile with a solid
// outline. When base is nil the tiles are drawn on a dark background, which
// is useful for layout-only bakes.
func Overlay(at atlas.Atlas, base image.Image) *image.NRGBA {
	res := at.Resolution
	out := image.NewNRGBA(image.Rect(0, 0, res, res))
	if base != nil {
		draw.Draw(out, out.Bounds(), base, base.Bounds().Min, draw.Src)
	} else {
		bg := colorful.Color{R: 0.08, G: 0.08, B: 0.1}
		r, g, b := bg.RGB255()
		draw.Draw(out, out.Bounds(), image.NewUniform(color.NRGBA{R: r, G: g, B: b, A: 0xff}), image.Point{}, draw.Src)
	}

	for _, p := range at.Placements {
		tile := p.Bounds().Image(res)
		c := ItemColor(p.ID)
		fill := c
		fill.A = 0x60
		draw.Draw(out, tile, image.NewUniform(fill), image.Point{}, draw.Over)
		outline(out, tile, c)
	}
	return out
}

func outline(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetNRGBA(x, r.Min.Y, c)
		img.SetNRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetNRGBA(r.Min.X, y, c)
		img.SetNRGBA(r.Max.X-1, y, c)
	}
}
