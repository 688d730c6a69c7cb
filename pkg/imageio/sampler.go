package imageio

import (
	"context"
	"image"
	"path/filepath"
	"sync"

	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
	"github.com/matzehuels/atlasbake/pkg/errors"
)

// FileSampler decodes sources from disk, relative to a root directory, and
// keeps each decoded image for the lifetime of the sampler.
type FileSampler struct {
	root string

	mu      sync.Mutex
	entries map[string]*decoded
}

type decoded struct {
	once sync.Once
	img  image.Image
	err  error
}

// NewFileSampler returns a sampler resolving relative sources against root.
func NewFileSampler(root string) *FileSampler {
	return &FileSampler{root: root, entries: make(map[string]*decoded)}
}

// Sample returns the window of source. A zero window means the whole image.
func (s *FileSampler) Sample(ctx context.Context, source string, window geom.UVRect) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := s.Image(source)
	if err != nil {
		return nil, err
	}
	if window.IsZero() {
		return img, nil
	}
	return subImage(img, window.Pixels(img.Bounds())), nil
}

// Image returns the decoded source, decoding it on first use.
func (s *FileSampler) Image(source string) (image.Image, error) {
	s.mu.Lock()
	e, ok := s.entries[source]
	if !ok {
		e = &decoded{}
		s.entries[source] = e
	}
	s.mu.Unlock()

	e.once.Do(func() {
		e.img, _, e.err = DecodeFile(s.Resolve(source))
	})
	return e.img, e.err
}

// Size returns the pixel size of source.
func (s *FileSampler) Size(source string) (geom.Size, error) {
	img, err := s.Image(source)
	if err != nil {
		return geom.Size{}, err
	}
	b := img.Bounds()
	if b.Empty() {
		return geom.Size{}, errors.New(errors.ErrCodeImageIO, "source %s is empty (%s)", source, describe(img))
	}
	return geom.Size{W: b.Dx(), H: b.Dy()}, nil
}

// Resolve maps a source to a file path.
func (s *FileSampler) Resolve(source string) string {
	if filepath.IsAbs(source) || s.root == "" {
		return source
	}
	return filepath.Join(s.root, source)
}
