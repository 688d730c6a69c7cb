package tree

import (
	"context"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/atlasbake/pkg/atlas/cluster"
	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
)

// twoLeaves is a root joining two leaves that form one group.
func twoLeaves() []cluster.TreeNode {
	return []cluster.TreeNode{
		{ID: 0, Parent: -1, Left: 1, Right: 2, ItemID: -1, Pixels: 128, MaxSize: 8, GroupRoot: true},
		{ID: 1, Parent: 0, Left: -1, Right: -1, ItemID: 0, Pixels: 64, MaxSize: 8},
		{ID: 2, Parent: 0, Left: -1, Right: -1, ItemID: 1, Pixels: 64, MaxSize: 8, Point: mgl32.Vec3{1, 2, 3}},
	}
}

func TestToDOT_Basic(t *testing.T) {
	dot := ToDOT(twoLeaves(), Options{Labels: []string{"crate.png"}})

	for _, want := range []string{
		"digraph G",
		`n0 [label="128 px"`,
		`n1 [label="crate.png"`,
		`n2 [label="#1"`,
		"n0 -> n1;",
		"n0 -> n2;",
		"penwidth=3",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() output missing %q", want)
		}
	}
}

func TestToDOT_Detailed(t *testing.T) {
	dot := ToDOT(twoLeaves(), Options{Detailed: true})
	if !strings.Contains(dot, `(1.00, 2.00, 3.00)`) {
		t.Error("ToDOT() detailed output missing point")
	}
	if !strings.Contains(dot, `max: 8`) {
		t.Error("ToDOT() detailed output missing max size")
	}
}

func TestToDOT_Mixed(t *testing.T) {
	nodes := twoLeaves()
	nodes[0].Mixed = true
	nodes[0].GroupRoot = false
	nodes[1].GroupRoot = true
	nodes[2].GroupRoot = true
	nodes[2].SortGroup = 1

	dot := ToDOT(nodes, Options{})
	if !strings.Contains(dot, "dashed") {
		t.Error("ToDOT() mixed node missing dashed style")
	}
}

func TestGroupOf(t *testing.T) {
	nodes := twoLeaves()
	if got := groupOf(nodes); got[0] != 0 || got[1] != 0 || got[2] != 0 {
		t.Errorf("groupOf() = %v, want all 0", got)
	}

	nodes[0].GroupRoot = false
	nodes[1].GroupRoot = true
	nodes[2].GroupRoot = true
	got := groupOf(nodes)
	if got[0] != -1 || got[1] != 0 || got[2] != 1 {
		t.Errorf("groupOf() = %v, want [-1 0 1]", got)
	}

	if len(groupOf(nil)) != 0 {
		t.Error("groupOf(nil) should be empty")
	}
}

func TestToDOT_FromSort(t *testing.T) {
	items := []cluster.Item{
		{ID: 0, Size: geom.Size{W: 8, H: 8}},
		{ID: 1, Size: geom.Size{W: 8, H: 8}, Point: mgl32.Vec3{1, 0, 0}},
		{ID: 2, Size: geom.Size{W: 8, H: 8}, Point: mgl32.Vec3{2, 0, 0}},
	}
	res, err := cluster.Sort(items, cluster.Config{AtlasSize: 64, PixelBudget: 3000, TextureFit: 0.15})
	if err != nil {
		t.Fatal(err)
	}
	dot := ToDOT(res.Tree(), Options{})
	if got := strings.Count(dot, "->"); got != 4 {
		t.Errorf("edges = %d, want 4 for 3 leaves", got)
	}
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), ToDOT(twoLeaves(), Options{}))
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	if !strings.Contains(string(svg), "<svg") {
		t.Error("RenderSVG() output is not SVG")
	}
	if !strings.Contains(string(svg), `viewBox="0 0`) {
		t.Error("RenderSVG() viewBox not normalized")
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="10pt" height="20pt" viewBox="0.00 0.00 10.00 20.00" xmlns="x"><g/></svg>`)
	out := string(normalizeViewBox(in))
	if !strings.HasPrefix(out, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10.00 20.00" width="10" height="20">`) {
		t.Errorf("normalizeViewBox() = %q", out)
	}
	if got := string(normalizeViewBox([]byte("<svg>"))); got != "<svg>" {
		t.Errorf("no viewBox: %q", got)
	}
}
