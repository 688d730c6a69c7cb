package cluster

import (
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
)

func testConfig(size int) Config {
	return Config{AtlasSize: size, PixelBudget: int(float64(size*size) * 0.85), TextureFit: 0.15}
}

func sq(id, side int, x float32, group int) Item {
	return Item{ID: id, Point: mgl32.Vec3{x, 0, 0}, SortGroup: group, Size: geom.Size{W: side, H: side}}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", testConfig(1024), false},
		{"not power of two", Config{AtlasSize: 1000, PixelBudget: 10}, true},
		{"too small", Config{AtlasSize: 8, PixelBudget: 10}, true},
		{"no budget", Config{AtlasSize: 64}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSortEmpty(t *testing.T) {
	res, err := Sort(nil, testConfig(64))
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}
	if len(res.Groups) != 0 || len(res.Tree()) != 0 {
		t.Errorf("Sort(nil) = %+v", res)
	}
}

func TestSortSingleItemShrinks(t *testing.T) {
	res, err := Sort([]Item{sq(5, 100, 0, 0)}, testConfig(1024))
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}
	if len(res.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(res.Groups))
	}
	g := res.Groups[0]
	if g.Resolution != 128 {
		t.Errorf("Resolution = %d, want 128", g.Resolution)
	}
	if len(g.Items) != 1 || g.Items[0].ID != 5 {
		t.Errorf("Items = %v", g.Items)
	}
}

func TestSortOversizedLeafIsSingleton(t *testing.T) {
	items := []Item{sq(0, 2000, 0, 0), sq(1, 8, 1, 0), sq(2, 8, 2, 0)}
	res, err := Sort(items, testConfig(1024))
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}
	var found bool
	for _, g := range res.Groups {
		for _, it := range g.Items {
			if it.ID != 0 {
				continue
			}
			found = true
			if len(g.Items) != 1 {
				t.Errorf("oversized item shares a group: %v", g.Items)
			}
			if g.Resolution != 1024 {
				t.Errorf("oversized group resolution = %d, want 1024", g.Resolution)
			}
		}
	}
	if !found {
		t.Error("oversized item missing from groups")
	}
}

func TestSortSeparatesSortGroups(t *testing.T) {
	var items []Item
	for i := 0; i < 24; i++ {
		items = append(items, sq(i, 16+i, float32(i%5), i%3-1))
	}
	res, err := Sort(items, testConfig(2048))
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}
	seen := 0
	for _, g := range res.Groups {
		for _, it := range g.Items {
			if it.SortGroup != g.Items[0].SortGroup {
				t.Errorf("group mixes sort groups %d and %d", it.SortGroup, g.Items[0].SortGroup)
			}
			seen++
		}
	}
	if seen != len(items) {
		t.Errorf("groups hold %d items, want %d", seen, len(items))
	}
	if len(res.Groups) < 3 {
		t.Errorf("groups = %d, want at least one per sort group", len(res.Groups))
	}
}

func TestSortSplitsByLocality(t *testing.T) {
	// Two clusters far apart, interleaved in input order. Four 10x10 items
	// fill the budget exactly.
	var items []Item
	for i := 0; i < 4; i++ {
		items = append(items, sq(2*i, 10, float32(i), 0), sq(2*i+1, 10, float32(1000+i), 0))
	}
	res, err := Sort(items, Config{AtlasSize: 32, PixelBudget: 400, TextureFit: 0.15})
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}
	if len(res.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(res.Groups))
	}
	for _, g := range res.Groups {
		if len(g.Items) != 4 {
			t.Errorf("group size = %d, want 4", len(g.Items))
		}
		parity := g.Items[0].ID % 2
		for _, it := range g.Items {
			if it.ID%2 != parity {
				t.Errorf("group mixes clusters: %v", g.Items)
				break
			}
		}
		if g.Pixels > 400 {
			t.Errorf("group pixels = %d, over budget", g.Pixels)
		}
	}
}

func TestSortRespectsBudget(t *testing.T) {
	var items []Item
	for i := 0; i < 9; i++ {
		items = append(items, sq(i, 512, float32(i), 0))
	}
	cfg := Config{AtlasSize: 1024, PixelBudget: 1024 * 1024, TextureFit: 0.15}
	res, err := Sort(items, cfg)
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}
	total := 0
	for _, g := range res.Groups {
		if g.Pixels > cfg.PixelBudget {
			t.Errorf("group pixels %d exceed budget", g.Pixels)
		}
		if g.Resolution > cfg.AtlasSize || g.Resolution < MinResolution {
			t.Errorf("resolution %d out of range", g.Resolution)
		}
		total += len(g.Items)
	}
	if total != len(items) {
		t.Errorf("groups hold %d items, want %d", total, len(items))
	}
}

func TestTreeShape(t *testing.T) {
	var items []Item
	for i := 0; i < 10; i++ {
		items = append(items, sq(100+i, 20, float32(i*i), i%2))
	}
	res, err := Sort(items, testConfig(256))
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}
	nodes := res.Tree()
	if len(nodes) != 2*len(items)-1 {
		t.Fatalf("nodes = %d, want %d", len(nodes), 2*len(items)-1)
	}
	if nodes[0].Parent != -1 {
		t.Errorf("root parent = %d", nodes[0].Parent)
	}
	leaves, roots := 0, 0
	for _, n := range nodes {
		if n.ItemID >= 0 {
			leaves++
			if n.Left != -1 || n.Right != -1 {
				t.Errorf("leaf %d has children", n.ID)
			}
		} else {
			l, r := nodes[n.Left], nodes[n.Right]
			if l.Parent != n.ID || r.Parent != n.ID {
				t.Errorf("node %d children do not point back", n.ID)
			}
			if n.Pixels != l.Pixels+r.Pixels {
				t.Errorf("node %d pixels = %d, want %d", n.ID, n.Pixels, l.Pixels+r.Pixels)
			}
			wantMixed := l.Mixed || r.Mixed || l.SortGroup != r.SortGroup
			if n.Mixed != wantMixed {
				t.Errorf("node %d mixed = %v, want %v", n.ID, n.Mixed, wantMixed)
			}
		}
		if n.GroupRoot {
			roots++
		}
	}
	if leaves != len(items) {
		t.Errorf("leaves = %d, want %d", leaves, len(items))
	}
	if roots != len(res.Groups) {
		t.Errorf("group roots = %d, groups = %d", roots, len(res.Groups))
	}
}

func TestSortDeterministic(t *testing.T) {
	var items []Item
	for i := 0; i < 40; i++ {
		items = append(items, Item{
			ID:        i,
			Point:     mgl32.Vec3{float32(i * 7 % 13), float32(i * 3 % 5), 0},
			SortGroup: i % 2,
			Size:      geom.Size{W: 8 + i*5%60, H: 8 + i*11%60},
		})
	}
	a, err := Sort(items, testConfig(128))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Sort(items, testConfig(128))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Groups, b.Groups) {
		t.Error("Sort() is not deterministic")
	}
}
