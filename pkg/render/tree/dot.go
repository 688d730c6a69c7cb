package tree

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/atlasbake/pkg/atlas/cluster"
	"github.com/matzehuels/atlasbake/pkg/imageio"
)

// Options configures tree diagram rendering.
type Options struct {
	// Labels names leaves by item ID. Missing entries fall back to "#id".
	Labels []string
	// Detailed adds the locality point and largest side to every label.
	Detailed bool
}

// ToDOT converts a cluster tree to Graphviz DOT format.
// The resulting DOT string can be rendered using [RenderSVG] or [RenderPNG].
func ToDOT(nodes []cluster.TreeNode, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.15,0.05\"];\n")
	buf.WriteString("  ranksep=0.4;\n")
	buf.WriteString("  nodesep=0.2;\n")
	buf.WriteString("\n")

	groups := groupOf(nodes)
	for _, n := range nodes {
		attrs := fmtAttrs(n, fmtLabel(n, opts), groups[n.ID])
		fmt.Fprintf(&buf, "  n%d [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, n := range nodes {
		if n.Left < 0 {
			continue
		}
		fmt.Fprintf(&buf, "  n%d -> n%d;\n", n.ID, n.Left)
		fmt.Fprintf(&buf, "  n%d -> n%d;\n", n.ID, n.Right)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// groupOf numbers group roots in pre-order and assigns every node below a
// root that root's number. Nodes above the roots get -1.
func groupOf(nodes []cluster.TreeNode) []int {
	out := make([]int, len(nodes))
	for i := range out {
		out[i] = -1
	}
	if len(nodes) == 0 {
		return out
	}
	next := 0
	type frame struct{ id, group int }
	stack := []frame{{0, -1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := nodes[f.id]
		g := f.group
		if g < 0 && n.GroupRoot {
			g = next
			next++
		}
		out[f.id] = g
		if n.Left >= 0 {
			stack = append(stack, frame{n.Right, g}, frame{n.Left, g})
		}
	}
	return out
}

func fmtLabel(n cluster.TreeNode, opts Options) string {
	var label string
	if n.ItemID >= 0 {
		if n.ItemID < len(opts.Labels) && opts.Labels[n.ItemID] != "" {
			label = opts.Labels[n.ItemID]
		} else {
			label = "#" + strconv.Itoa(n.ItemID)
		}
	} else {
		label = fmt.Sprintf("%d px", n.Pixels)
	}
	if !opts.Detailed {
		return label
	}
	p := n.Point
	return fmt.Sprintf("%s\ngroup: %d\nmax: %d\n(%.2f, %.2f, %.2f)", label, n.SortGroup, n.MaxSize, p.X(), p.Y(), p.Z())
}

func fmtAttrs(n cluster.TreeNode, label string, group int) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if group >= 0 {
		c := imageio.ItemColor(group)
		attrs = append(attrs, fmt.Sprintf("fillcolor=\"#%02x%02x%02x\"", c.R, c.G, c.B))
	}
	if n.GroupRoot {
		attrs = append(attrs, "penwidth=3")
	}
	if n.Mixed {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fontcolor=grey40")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	out, err := render(ctx, dot, graphviz.SVG)
	if err != nil {
		return nil, err
	}
	return normalizeViewBox(out), nil
}

// RenderPNG renders a DOT graph to PNG using Graphviz.
func RenderPNG(ctx context.Context, dot string) ([]byte, error) {
	return render(ctx, dot, graphviz.PNG)
}

func render(ctx context.Context, dot string, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the diagram scales with
// its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}
