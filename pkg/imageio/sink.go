package imageio

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// EncodePNG encodes img with best-speed compression.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AtlasName returns the file name of atlas index for a prefix.
func AtlasName(prefix string, index int) string {
	return fmt.Sprintf("%s_%d.png", prefix, index)
}

// DirSink writes every atlas as <dir>/<prefix>_<index>.png.
type DirSink struct {
	dir    string
	prefix string
}

// NewDirSink returns a sink writing into dir.
func NewDirSink(dir, prefix string) *DirSink {
	if prefix == "" {
		prefix = "atlas"
	}
	return &DirSink{dir: dir, prefix: prefix}
}

// Persist encodes and writes img, returning the file path.
func (s *DirSink) Persist(ctx context.Context, index int, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := EncodePNG(img)
	if err != nil {
		return "", fmt.Errorf("encode atlas %d: %w", index, err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, AtlasName(s.prefix, index))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// MemorySink keeps encoded atlases in memory, keyed by index.
type MemorySink struct {
	prefix string

	mu    sync.Mutex
	files map[int][]byte
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink(prefix string) *MemorySink {
	if prefix == "" {
		prefix = "atlas"
	}
	return &MemorySink{prefix: prefix, files: make(map[int][]byte)}
}

// Persist encodes img and returns its file name.
func (s *MemorySink) Persist(_ context.Context, index int, img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", fmt.Errorf("encode atlas %d: %w", index, err)
	}
	s.mu.Lock()
	s.files[index] = data
	s.mu.Unlock()
	return AtlasName(s.prefix, index), nil
}

// File returns the encoded atlas at index.
func (s *MemorySink) File(index int) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[index]
	return data, ok
}

// Indices returns the stored atlas indices in order.
func (s *MemorySink) Indices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.files))
	for i := range s.files {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
