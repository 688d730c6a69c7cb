// Package pkg provides the core libraries of atlasbake.
//
// # Overview
//
// Atlasbake packs many source images into a few square texture atlases.
// Items that sit close together in 3D tend to land in the same atlas, and
// every item gets a UV window plus bleed margin so it can be sampled without
// seams. The pkg directory is organized into three areas:
//
//  1. [atlas] - The engine (clustering, skyline packing, merging, cycles)
//  2. [manifest], [imageio] - Inputs and outputs (manifests, decoding, PNG)
//  3. [pipeline] - Orchestration with caching and history, used by CLI and API
//
// # Architecture
//
// The data flow of one bake:
//
//	Manifest (TOML/JSON)
//	         ↓
//	    [manifest] package (items, settings, derived sizes)
//	         ↓
//	    [pipeline] package (duplicate joining, cache lookup)
//	         ↓
//	    [atlas] package (sort → pack → merge, up to four cycles)
//	         ↓
//	    PNG atlases + JSON placements
//
// # Quick Start
//
// Bake a manifest:
//
//	runner := pipeline.NewRunner(nil, nil, nil, nil)
//	res, err := runner.Execute(ctx, pipeline.Options{
//	    Manifest:  "scene.toml",
//	    OutputDir: "out",
//	})
//
// Drive the engine directly:
//
//	cfg := atlas.DefaultConfig()
//	cfg.Sampler = imageio.NewFileSampler("textures")
//	cfg.Sink = imageio.NewDirSink("out", "atlas")
//	res, err := atlas.Bake(ctx, inputs, cfg)
//
// # Main Packages
//
// ## Engine
//
// [atlas] - Runs the bake cycles. Items that do not fit in one cycle are
// retried in the next with a looser sort.
//
// [atlas/cluster] - Agglomerative binary tree over item positions; cuts it
// into groups that fit one atlas each.
//
// [atlas/skyline] - Skyline bin packer with rotation and waste scoring.
//
// [atlas/merge] - Composites packed items into atlas images with clamped
// bleed margins.
//
// [atlas/geom] - Sizes, pixel rectangles and UV windows.
//
// ## Inputs and Outputs
//
// [manifest] - TOML and JSON manifests, layered settings.
//
// [imageio] - Image decoding (PNG, JPEG, GIF, BMP, WebP, TGA), source
// sampling, atlas sinks and placement overlays.
//
// [render/tree] - Graphviz diagrams of the cluster tree.
//
// ## Infrastructure
//
// [pipeline] - Complete bake pipeline (load → join → bake → persist) used by
// the CLI and the HTTP API.
//
// [cache] - Content-addressed result cache: file, Redis and null backends.
//
// [store] - Bake history: JSON-lines file, MongoDB and null backends.
//
// [observability] - Hooks for metrics and tracing.
//
// [errors] - Error codes shared by the CLI and the API.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/atlas/...              # Engine only
//
// [atlas]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/atlas
// [atlas/cluster]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/atlas/cluster
// [atlas/skyline]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/atlas/skyline
// [atlas/merge]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/atlas/merge
// [atlas/geom]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/atlas/geom
// [manifest]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/manifest
// [imageio]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/imageio
// [render/tree]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/render/tree
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/cache
// [store]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/store
// [observability]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/atlasbake/pkg/errors
package pkg
