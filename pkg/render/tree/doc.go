// Package tree renders a cluster tree as a node-link diagram.
//
// # Overview
//
// The clusterer groups items by walking a binary tree (package
// atlas/cluster). This package turns a snapshot of that tree into Graphviz
// DOT source and renders it in-process, which makes it easy to see why two
// items did or did not end up in the same atlas.
//
// # Usage
//
//	dot := tree.ToDOT(res.Tree(), tree.Options{Labels: names})
//	svg, err := tree.RenderSVG(ctx, dot)
//
// Group roots are filled with a per-group colour; every leaf below a root
// shares it. Internal nodes show their pixel total, and mixed nodes (whose
// leaves span several sort groups) are drawn dashed.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG and
// PNG rendering; no external Graphviz install is needed.
package tree
