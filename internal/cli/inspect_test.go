package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/atlasbake/pkg/atlas"
	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
	"github.com/matzehuels/atlasbake/pkg/atlas/skyline"
	"github.com/matzehuels/atlasbake/pkg/errors"
	"github.com/matzehuels/atlasbake/pkg/pipeline"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		ID: "5d1f7c8e-2f1a-4a54-9a41-0c6f8f3e2b10",
		Entries: []pipeline.Entry{
			{Source: "crate.png", Size: geom.Size{W: 32, H: 32}, Output: atlas.Output{Atlas: 0}},
			{Source: "huge.png", Size: geom.Size{W: 900, H: 900}, Output: atlas.Output{Atlas: -1}},
		},
		Atlases: []pipeline.AtlasInfo{{
			Index:      0,
			File:       "atlas_0.png",
			Resolution: 64,
			Placements: []skyline.Placement{{ID: 0, Size: geom.Size{W: 32, H: 32}}},
		}},
		Stats: pipeline.Stats{Inputs: 2, Unique: 2, Placed: 1, Unplaced: 1, Atlases: 1},
	}
}

func TestReadResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atlas.json")
	data, err := json.Marshal(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := readResult(path)
	if err != nil {
		t.Fatalf("readResult: %v", err)
	}
	if len(res.Entries) != 2 || len(res.Unplaced()) != 1 {
		t.Errorf("entries = %d, unplaced = %d", len(res.Entries), len(res.Unplaced()))
	}

	if _, err := readResult(filepath.Join(dir, "missing.json")); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("missing file error = %v", err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readResult(bad); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("bad json error = %v", err)
	}
}

func TestRenderInspect(t *testing.T) {
	res := sampleResult()

	if s := renderSummary(res); !strings.Contains(s, res.ID) {
		t.Errorf("summary missing id: %q", s)
	}
	atlases := renderAtlasTable(res).Render()
	for _, s := range []string{"64²", "25.0%", "atlas_0.png"} {
		if !strings.Contains(atlases, s) {
			t.Errorf("atlas table missing %q:\n%s", s, atlases)
		}
	}
	entries := renderEntryTable(res).Render()
	for _, s := range []string{"crate.png", "huge.png", "32x32"} {
		if !strings.Contains(entries, s) {
			t.Errorf("entry table missing %q:\n%s", s, entries)
		}
	}
}
