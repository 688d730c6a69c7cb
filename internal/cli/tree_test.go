package cli

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/atlasbake/pkg/pipeline"
)

const treeManifest = `
[settings]
atlas_size = 64
margin = 0

[[item]]
source = "a.png"
point = [0.0, 0.0, 0.0]

[[item]]
source = "a.png"
point = [1.0, 0.0, 0.0]
size = { w = 16, h = 16 }

[[item]]
source = "a.png"
point = [5.0, 0.0, 0.0]
size = { w = 24, h = 8 }
`

func writeTreeScene(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "scene.toml")
	if err := os.WriteFile(path, []byte(treeManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRenderTreeDOT(t *testing.T) {
	c := New(io.Discard, LogInfo)
	path := writeTreeScene(t)

	data, groups, err := c.renderTree(context.Background(), pipeline.Options{Manifest: path}, "tree.dot", false)
	if err != nil {
		t.Fatalf("renderTree: %v", err)
	}
	if groups < 1 {
		t.Errorf("groups = %d, want at least 1", groups)
	}
	dot := string(data)
	if !strings.HasPrefix(dot, "digraph G {") {
		t.Errorf("not a DOT graph:\n%s", dot)
	}
	if !strings.Contains(dot, "a.png") {
		t.Errorf("DOT missing leaf label:\n%s", dot)
	}
}

func TestRenderTreeUnsupported(t *testing.T) {
	c := New(io.Discard, LogInfo)
	_, _, err := c.renderTree(context.Background(), pipeline.Options{Manifest: writeTreeScene(t)}, "tree.pdf", false)
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("error = %v, want unsupported format", err)
	}
}
