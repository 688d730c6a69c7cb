package merge

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"

	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
	"github.com/matzehuels/atlasbake/pkg/atlas/skyline"
)

var (
	red  = color.NRGBA{R: 0xff, A: 0xff}
	blue = color.NRGBA{B: 0xff, A: 0xff}
)

type fakeSampler struct {
	images map[string]image.Image
	err    error
	calls  int
}

func (f *fakeSampler) Sample(_ context.Context, source string, _ geom.UVRect) (image.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	img, ok := f.images[source]
	if !ok {
		return nil, errors.New("no such source")
	}
	return img, nil
}

// redBlue is a 2x1 image, red on the left and blue on the right.
func redBlue() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, red)
	img.SetNRGBA(1, 0, blue)
	return img
}

func TestMergeBleed(t *testing.T) {
	s := &fakeSampler{images: map[string]image.Image{"rb": redBlue()}}
	items := []Item{{
		Placement: skyline.Placement{ID: 0, X: 1, Y: 1, Size: geom.Size{W: 4, H: 3}},
		Source:    "rb",
		Crop:      geom.FullUV(),
	}}
	img, err := Merge(context.Background(), items, Config{
		Resolution: 8,
		Margin:     1,
		Sampler:    s,
		Background: DefaultBackground,
		Scaler:     draw.NearestNeighbor,
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	// The tile occupies image rows 4..6 after flipping.
	tests := []struct {
		x, y int
		want color.NRGBA
	}{
		{1, 4, red},  // margin corner
		{2, 5, red},  // content
		{3, 5, blue}, // content
		{4, 6, blue}, // margin corner
		{0, 4, DefaultBackground},
		{1, 3, DefaultBackground},
		{5, 5, DefaultBackground},
		{1, 7, DefaultBackground},
	}
	for _, tt := range tests {
		if got := img.NRGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestMergeRotated(t *testing.T) {
	s := &fakeSampler{images: map[string]image.Image{"rb": redBlue()}}
	items := []Item{{
		Placement: skyline.Placement{X: 0, Y: 0, Size: geom.Size{W: 1, H: 2}, Rotated: true},
		Source:    "rb",
		Crop:      geom.FullUV(),
	}}
	img, err := Merge(context.Background(), items, Config{
		Resolution: 4,
		Sampler:    s,
		Scaler:     draw.NearestNeighbor,
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	// A quarter turn counter-clockwise brings the right edge to the top.
	if got := img.NRGBAAt(0, 2); got != blue {
		t.Errorf("top of rotated tile = %v, want blue", got)
	}
	if got := img.NRGBAAt(0, 3); got != red {
		t.Errorf("bottom of rotated tile = %v, want red", got)
	}
}

func TestMergeReusesCanvas(t *testing.T) {
	canvas := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	canvas.SetNRGBA(3, 0, red)
	s := &fakeSampler{images: map[string]image.Image{"rb": redBlue()}}
	img, err := Merge(context.Background(), nil, Config{Resolution: 4, Sampler: s, Canvas: canvas, Background: DefaultBackground})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if img != canvas {
		t.Error("Merge() did not draw into the canvas")
	}
	if got := img.NRGBAAt(3, 0); got != DefaultBackground {
		t.Errorf("stale pixel = %v, want background", got)
	}
}

func TestMergeErrors(t *testing.T) {
	boom := errors.New("boom")
	item := Item{Placement: skyline.Placement{Size: geom.Size{W: 4, H: 4}}, Source: "rb"}
	tests := []struct {
		name string
		cfg  Config
		item Item
		is   error
	}{
		{"no sampler", Config{Resolution: 8}, item, nil},
		{"canvas mismatch", Config{Resolution: 8, Sampler: &fakeSampler{}, Canvas: image.NewNRGBA(image.Rect(0, 0, 4, 4))}, item, nil},
		{"margin swallows content", Config{Resolution: 8, Margin: 2, Sampler: &fakeSampler{}}, item, nil},
		{"sampler failure", Config{Resolution: 8, Sampler: &fakeSampler{err: boom}}, item, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(context.Background(), []Item{tt.item}, tt.cfg)
			if err == nil {
				t.Fatal("Merge() error = nil")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Merge() error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestMergeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeSampler{images: map[string]image.Image{"rb": redBlue()}}
	items := []Item{{Placement: skyline.Placement{Size: geom.Size{W: 2, H: 1}}, Source: "rb"}}
	if _, err := Merge(ctx, items, Config{Resolution: 4, Sampler: s}); !errors.Is(err, context.Canceled) {
		t.Errorf("Merge() error = %v, want context.Canceled", err)
	}
	if s.calls != 0 {
		t.Errorf("sampler called %d times after cancel", s.calls)
	}
}

func TestScaleMargin(t *testing.T) {
	tests := []struct {
		margin, base, res, want int
	}{
		{32, 4096, 4096, 32},
		{32, 4096, 1024, 8},
		{32, 4096, 64, 1},
		{0, 4096, 64, 0},
		{3, 16, 16, 3},
	}
	for _, tt := range tests {
		if got := ScaleMargin(tt.margin, tt.base, tt.res); got != tt.want {
			t.Errorf("ScaleMargin(%d, %d, %d) = %d, want %d", tt.margin, tt.base, tt.res, got, tt.want)
		}
	}
}

func TestUV(t *testing.T) {
	p := skyline.Placement{X: 10, Y: 20, Size: geom.Size{W: 40, H: 30}}
	got := UV(p, 100, 5)
	want := geom.UVRect{Min: mgl32.Vec2{0.15, 0.25}, Max: mgl32.Vec2{0.45, 0.45}}
	if !got.Min.ApproxEqual(want.Min) || !got.Max.ApproxEqual(want.Max) {
		t.Errorf("UV() = %v, want %v", got, want)
	}
}
