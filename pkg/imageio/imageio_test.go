package imageio

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/atlasbake/pkg/atlas"
	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
	"github.com/matzehuels/atlasbake/pkg/atlas/skyline"
	"github.com/matzehuels/atlasbake/pkg/errors"
)

// quadrants returns a w x h image whose top half is red and bottom half
// blue.
func quadrants(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := color.NRGBA{R: 0xff, A: 0xff}
		if y >= h/2 {
			c = color.NRGBA{B: 0xff, A: 0xff}
		}
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\nrest"), ".png"},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, ".jpg"},
		{"gif", []byte("GIF89a..."), ".gif"},
		{"bmp", []byte("BM\x00\x00"), ".bmp"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), ".webp"},
		{"unknown", []byte("hello"), ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.data); got != tt.want {
				t.Errorf("Sniff() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeFallsBackToSignature(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, quadrants(4, 4)); err != nil {
		t.Fatal(err)
	}
	img, format, err := Decode(buf.Bytes(), ".jpg")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 4 {
		t.Errorf("Decode() = %s %v", format, img.Bounds())
	}

	if _, _, err := Decode([]byte("nope"), ""); !errors.Is(err, errors.ErrCodeUnsupportedFormat) {
		t.Errorf("Decode(garbage) error = %v", err)
	}
	if _, _, err := Decode([]byte("nope"), ".xcf"); !errors.Is(err, errors.ErrCodeUnsupportedFormat) {
		t.Errorf("Decode(.xcf) error = %v", err)
	}
	if _, _, err := Decode([]byte("\x89PNG\r\n\x1a\ntruncated"), ".png"); !errors.Is(err, errors.ErrCodeImageIO) {
		t.Errorf("Decode(truncated) error = %v", err)
	}
}

func TestDecodeFileMissing(t *testing.T) {
	_, _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.png"))
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("DecodeFile() error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestSupported(t *testing.T) {
	for path, want := range map[string]bool{
		"a.png": true, "b.TGA": true, "c.webp": true, "d.psd": false, "e": false,
	} {
		if got := Supported(path); got != want {
			t.Errorf("Supported(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestFileSampler(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "q.png"), quadrants(8, 4))
	s := NewFileSampler(dir)
	ctx := context.Background()

	size, err := s.Size("q.png")
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != (geom.Size{W: 8, H: 4}) {
		t.Errorf("Size() = %v", size)
	}

	// The bottom half in UV space is the blue half of the image.
	bottom := geom.UVRect{Min: mgl32.Vec2{0, 0}, Max: mgl32.Vec2{1, 0.5}}
	img, err := s.Sample(ctx, "q.png", bottom)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 8 || b.Dy() != 2 {
		t.Fatalf("Sample() bounds = %v", b)
	}
	if got := color.NRGBAModel.Convert(img.At(b.Min.X, b.Min.Y)); got != (color.NRGBA{B: 0xff, A: 0xff}) {
		t.Errorf("bottom window pixel = %v, want blue", got)
	}

	whole, err := s.Sample(ctx, "q.png", geom.UVRect{})
	if err != nil || whole.Bounds().Dy() != 4 {
		t.Errorf("Sample(zero window) = %v, %v", whole.Bounds(), err)
	}

	if _, err := s.Sample(ctx, "missing.png", geom.FullUV()); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("Sample(missing) error = %v", err)
	}
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewDirSink(dir, "")
	path, err := s.Persist(context.Background(), 3, quadrants(4, 4))
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if filepath.Base(path) != "atlas_3.png" {
		t.Errorf("Persist() path = %s", path)
	}
	img, format, err := DecodeFile(path)
	if err != nil || format != "png" || img.Bounds().Dx() != 4 {
		t.Errorf("written atlas = %v %s %v", img, format, err)
	}
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink("page")
	for _, i := range []int{2, 0} {
		name, err := s.Persist(context.Background(), i, quadrants(2, 2))
		if err != nil {
			t.Fatal(err)
		}
		if name != AtlasName("page", i) {
			t.Errorf("name = %s", name)
		}
	}
	if got := s.Indices(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("Indices() = %v", got)
	}
	data, ok := s.File(2)
	if !ok || Sniff(data) != ".png" {
		t.Error("File(2) is not a png")
	}
}

func TestOverlay(t *testing.T) {
	at := atlas.Atlas{
		Resolution: 16,
		Placements: []skyline.Placement{
			{ID: 0, X: 0, Y: 0, Size: geom.Size{W: 8, H: 8}},
			{ID: 1, X: 8, Y: 0, Size: geom.Size{W: 8, H: 4}},
		},
	}
	img := Overlay(at, nil)
	if img.Bounds().Dx() != 16 {
		t.Fatalf("Overlay() bounds = %v", img.Bounds())
	}
	// Bottom-left corner of item 0 is image row 15.
	if got := img.NRGBAAt(0, 15); got != ItemColor(0) {
		t.Errorf("outline pixel = %v, want %v", got, ItemColor(0))
	}
	if ItemColor(0) == ItemColor(1) {
		t.Error("neighbouring ids share a colour")
	}
	// Untouched area keeps the background.
	if got := img.NRGBAAt(12, 0); got.A != 0xff || got == ItemColor(1) {
		t.Errorf("background pixel = %v", got)
	}
}
