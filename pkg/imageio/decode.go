// Package imageio reads source images and writes baked atlases.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"

	"github.com/matzehuels/atlasbake/pkg/errors"
)

// Formats lists the file extensions Decode understands.
var Formats = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".tga"}

// DecodeFile reads and decodes the image at path. The extension picks the
// decoder; when it fails or is missing, the file signature is tried.
func DecodeFile(path string) (image.Image, string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, "", errors.Wrap(errors.ErrCodeFileNotFound, err, "source %s", path)
	}
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeImageIO, err, "read %s", path)
	}
	return Decode(data, filepath.Ext(path))
}

// Decode decodes data, trying the decoder for ext first and the sniffed
// format second. It returns the format name without the dot.
func Decode(data []byte, ext string) (image.Image, string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	sniffed := Sniff(data)
	if ext == "" {
		ext = sniffed
	}
	if ext == "" {
		return nil, "", errors.New(errors.ErrCodeUnsupportedFormat, "unrecognised image data")
	}
	img, err := decodeAs(data, ext)
	if err == nil {
		return img, strings.TrimPrefix(ext, "."), nil
	}
	if sniffed != "" && sniffed != ext {
		if img, ferr := decodeAs(data, sniffed); ferr == nil {
			return img, strings.TrimPrefix(sniffed, "."), nil
		}
	}
	if errors.Is(err, errors.ErrCodeUnsupportedFormat) {
		return nil, "", err
	}
	return nil, "", errors.Wrap(errors.ErrCodeImageIO, err, "decode %s", strings.TrimPrefix(ext, "."))
}

func decodeAs(data []byte, ext string) (image.Image, error) {
	r := bytes.NewReader(data)
	switch ext {
	case ".png":
		return png.Decode(r)
	case ".jpg", ".jpeg":
		return jpeg.Decode(r)
	case ".gif":
		return gif.Decode(r)
	case ".bmp":
		return bmp.Decode(r)
	case ".webp":
		return webp.Decode(r)
	case ".tga":
		return tga.Decode(r)
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedFormat, "unsupported image extension %q", ext)
	}
}

// Sniff guesses the extension from a file signature. TGA has none.
func Sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return ".png"
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return ".jpg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return ".gif"
	case bytes.HasPrefix(data, []byte("BM")):
		return ".bmp"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return ".webp"
	}
	return ""
}

// Supported reports whether path has a decodable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range Formats {
		if f == ext {
			return true
		}
	}
	return false
}

// subImage crops img to r, copying only when img cannot share pixels.
func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			out.Set(x-r.Min.X, y-r.Min.Y, img.At(x, y))
		}
	}
	return out
}

func describe(img image.Image) string {
	return fmt.Sprintf("%T %v", img, img.Bounds())
}
