// Package geom holds the small value types shared by the atlas packages:
// pixel sizes, integer rectangles and UV windows.
//
// Pixel coordinates use a bottom-left origin, the same convention as UV space.
// Image rows are flipped only at the point where pixels are written.
package geom

import (
	"fmt"
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Size is a pixel size.
type Size struct {
	W int `json:"w" toml:"w"`
	H int `json:"h" toml:"h"`
}

// Area returns W*H.
func (s Size) Area() int { return s.W * s.H }

// Major returns the larger side.
func (s Size) Major() int { return max(s.W, s.H) }

// Swap returns the size rotated by 90 degrees.
func (s Size) Swap() Size { return Size{W: s.H, H: s.W} }

// Empty reports whether either side is not positive.
func (s Size) Empty() bool { return s.W <= 0 || s.H <= 0 }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.W, s.H) }

// Rect is an integer rectangle with a bottom-left origin.
type Rect struct {
	X, Y, W, H int
}

// Overlaps reports whether r and o share any pixel.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Within reports whether r lies inside a square bin of the given side.
func (r Rect) Within(side int) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.W <= side && r.Y+r.H <= side
}

// Image converts r to image space inside a square of the given side,
// flipping the vertical axis.
func (r Rect) Image(side int) image.Rectangle {
	top := side - r.Y - r.H
	return image.Rect(r.X, top, r.X+r.W, top+r.H)
}

// UVRect is a window in UV space. Min is the bottom-left corner.
type UVRect struct {
	Min mgl32.Vec2 `json:"min" toml:"min"`
	Max mgl32.Vec2 `json:"max" toml:"max"`
}

// FullUV is the whole [0,1]² window.
func FullUV() UVRect {
	return UVRect{Max: mgl32.Vec2{1, 1}}
}

// IsZero reports whether the window was left unset.
func (r UVRect) IsZero() bool {
	return r.Min == (mgl32.Vec2{}) && r.Max == (mgl32.Vec2{})
}

// Extent returns Max-Min.
func (r UVRect) Extent() mgl32.Vec2 { return r.Max.Sub(r.Min) }

// Valid reports whether the window is non-empty and inside [0,1]².
func (r UVRect) Valid() bool {
	e := r.Extent()
	return e.X() > 0 && e.Y() > 0 &&
		r.Min.X() >= 0 && r.Min.Y() >= 0 && r.Max.X() <= 1 && r.Max.Y() <= 1
}

// Pixels maps the window onto an image of the given bounds. UV v=0 is the
// bottom row of the image. The result always covers at least one pixel.
func (r UVRect) Pixels(b image.Rectangle) image.Rectangle {
	w, h := float64(b.Dx()), float64(b.Dy())
	x0 := int(math.Floor(float64(r.Min.X()) * w))
	x1 := int(math.Ceil(float64(r.Max.X()) * w))
	y0 := int(math.Floor((1 - float64(r.Max.Y())) * h))
	y1 := int(math.Ceil((1 - float64(r.Min.Y())) * h))
	out := image.Rect(b.Min.X+x0, b.Min.Y+y0, b.Min.X+x1, b.Min.Y+y1).Intersect(b)
	if out.Empty() && !b.Empty() {
		p := image.Pt(min(b.Min.X+x0, b.Max.X-1), min(b.Min.Y+y0, b.Max.Y-1))
		out = image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))}
	}
	return out
}

// CropSize scales a source size by the window extent, rounding to the
// nearest pixel and never below one.
func (r UVRect) CropSize(src Size) Size {
	e := r.Extent()
	return Size{
		W: max(1, int(math.Round(float64(src.W)*float64(e.X())))),
		H: max(1, int(math.Round(float64(src.H)*float64(e.Y())))),
	}
}
