package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/atlasbake/pkg/atlas"
	"github.com/matzehuels/atlasbake/pkg/cache"
	"github.com/matzehuels/atlasbake/pkg/errors"
	"github.com/matzehuels/atlasbake/pkg/imageio"
	"github.com/matzehuels/atlasbake/pkg/manifest"
	"github.com/matzehuels/atlasbake/pkg/observability"
	"github.com/matzehuels/atlasbake/pkg/store"
)

// Runner encapsulates pipeline execution with caching and history.
// Both CLI and API use it so a bake behaves the same everywhere.
//
// The Runner is stateless except for its backends. Multiple goroutines can
// safely use the same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Store  store.Store
	Logger *log.Logger
}

// NewRunner creates a runner with the given backends.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
// If st is nil, a NullStore is used (no history).
func NewRunner(c cache.Cache, keyer cache.Keyer, st store.Store, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if st == nil {
		st = store.NullStore{}
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Store:  st,
		Logger: logger,
	}
}

// Prepared is a loaded manifest ready to bake.
type Prepared struct {
	Manifest *manifest.Manifest
	Settings manifest.Settings
	Config   atlas.Config
	Sampler  *imageio.FileSampler
	// Inputs is parallel to the manifest items.
	Inputs []atlas.Input
	// Unique holds the inputs that are actually packed; Index maps each
	// entry of Inputs to its position in Unique.
	Unique []atlas.Input
	Index  []int
	Join   bool
}

// Prepare loads the manifest and derives the engine inputs.
func (r *Runner) Prepare(ctx context.Context, opts Options) (*Prepared, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	r.applyLogger(&opts)

	var (
		m   *manifest.Manifest
		err error
	)
	if len(opts.ManifestData) > 0 {
		m, err = manifest.Parse(opts.ManifestData, opts.ManifestFormat)
	} else {
		m, err = manifest.Load(opts.Manifest)
	}
	if err != nil {
		return nil, err
	}
	if opts.RestrictSources {
		for _, it := range m.Items {
			if err := errors.ValidateSourcePath(it.Source); err != nil {
				return nil, err
			}
		}
	}

	p := &Prepared{Manifest: m, Settings: opts.Settings(m)}
	p.Config, err = opts.EngineConfig(p.Settings)
	if err != nil {
		return nil, err
	}
	root := opts.Root
	if root == "" {
		root = m.Dir
	}
	p.Sampler = imageio.NewFileSampler(root)

	// Inputs reads the cap from the manifest settings; apply the overrides.
	m.Settings = p.Settings
	p.Inputs, err = m.Inputs(p.Sampler, p.Config.Margin, p.Config.AtlasSize)
	if err != nil {
		return nil, err
	}
	p.Join = JoinDuplicates(p.Settings)
	if p.Join {
		p.Unique, p.Index = Join(p.Inputs)
	} else {
		p.Unique, p.Index = p.Inputs, Identity(len(p.Inputs))
	}
	return p, ctx.Err()
}

// Execute runs the complete load → bake → persist pipeline with caching.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	r.applyLogger(&opts)

	loadStart := time.Now()
	p, err := r.Prepare(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	hash, err := inputHash(p, !opts.LayoutOnly)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	loadTime := time.Since(loadStart)

	opts.Logger.Info("loaded manifest",
		"items", len(p.Inputs),
		"unique", len(p.Unique),
		"duration", loadTime)

	key := r.Keyer.BakeKey(hash, opts.BakeKeyOpts(p.Config, p.Join))
	var result *Result
	if !opts.Refresh {
		result = r.cached(ctx, key)
	}
	if result == nil {
		if result, err = r.bake(ctx, opts, p); err != nil {
			return nil, fmt.Errorf("bake: %w", err)
		}
		result.InputHash = hash
		r.save(ctx, key, result)
	}
	result.Manifest = opts.Manifest
	result.Stats.LoadTime = loadTime

	if opts.OutputDir != "" {
		if result.Files, err = writeFiles(opts.OutputDir, opts.Prefix, result); err != nil {
			return nil, fmt.Errorf("write: %w", err)
		}
	}

	rec := store.Record{
		ID:        result.ID,
		CreatedAt: time.Now().UTC(),
		Manifest:  opts.Manifest,
		InputHash: result.InputHash,
		Inputs:    result.Stats.Inputs,
		Atlases:   result.Stats.Atlases,
		Unplaced:  result.Stats.Unplaced,
		Cycles:    len(result.Cycles),
		Duration:  result.Stats.BakeTime,
		Cached:    result.Cached,
		Assets:    result.Files,
	}
	if err := r.Store.Record(ctx, rec); err != nil {
		opts.Logger.Warn("record bake history", "id", result.ID, "error", err)
	}

	opts.Logger.Info("bake finished",
		"id", result.ID,
		"atlases", result.Stats.Atlases,
		"unplaced", result.Stats.Unplaced,
		"cached", result.Cached)
	return result, nil
}

// bake runs the engine on the prepared inputs.
func (r *Runner) bake(ctx context.Context, opts Options, p *Prepared) (*Result, error) {
	cfg := p.Config
	sink := imageio.NewMemorySink(opts.Prefix)
	if !opts.LayoutOnly {
		cfg.Sampler = p.Sampler
		cfg.Sink = sink
	}

	start := time.Now()
	res, err := atlas.Bake(ctx, p.Unique, cfg)
	if err != nil {
		return nil, err
	}

	out := &Result{
		ID:      uuid.NewString(),
		Entries: make([]Entry, len(p.Inputs)),
		Cycles:  res.Cycles,
		Trace:   res.Trace,
		Images:  make(map[int][]byte),
	}
	for i, in := range p.Inputs {
		out.Entries[i] = Entry{
			Source:    in.Source,
			SortGroup: in.SortGroup,
			Size:      in.Size,
			Output:    res.Outputs[p.Index[i]],
		}
	}
	for _, at := range res.Atlases {
		info := AtlasInfo{
			Index:      at.Index,
			Resolution: at.Resolution,
			Margin:     at.Margin,
			Cycle:      at.Cycle,
			Placements: at.Placements,
		}
		if data, ok := sink.File(at.Index); ok {
			info.File = at.Asset
			out.Images[at.Index] = data
		}
		out.Atlases = append(out.Atlases, info)
	}
	out.Stats = Stats{
		Inputs:   len(p.Inputs),
		Unique:   len(p.Unique),
		Atlases:  len(out.Atlases),
		BakeTime: time.Since(start),
	}
	for _, e := range out.Entries {
		if e.Placed() {
			out.Stats.Placed++
		} else {
			out.Stats.Unplaced++
		}
	}
	return out, nil
}

// =============================================================================
// Cache
// =============================================================================

// cached returns the result stored under key, or nil on any miss.
func (r *Runner) cached(ctx context.Context, key string) *Result {
	id, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "bake")
		return nil
	}
	res, err := r.Load(ctx, string(id))
	if err != nil {
		r.Logger.Debug("cached bake unusable", "id", string(id), "error", err)
		observability.Cache().OnCacheMiss(ctx, "bake")
		return nil
	}
	observability.Cache().OnCacheHit(ctx, "bake")
	res.Cached = true
	return res
}

// save stores result, its atlases and the key pointing at it. Cache
// failures are logged, never returned.
func (r *Runner) save(ctx context.Context, key string, result *Result) {
	doc, err := json.Marshal(result)
	if err != nil {
		r.Logger.Warn("encode bake result", "error", err)
		return
	}
	for idx, data := range result.Images {
		if err := r.set(ctx, "atlas", r.Keyer.AtlasKey(result.ID, idx), data, cache.TTLAtlas); err != nil {
			return
		}
	}
	if err := r.set(ctx, "result", r.Keyer.ResultKey(result.ID), doc, cache.TTLBake); err != nil {
		return
	}
	_ = r.set(ctx, "bake", key, []byte(result.ID), cache.TTLBake)
}

func (r *Runner) set(ctx context.Context, kind, key string, data []byte, ttl time.Duration) error {
	if err := r.Cache.Set(ctx, key, data, ttl); err != nil {
		r.Logger.Warn("cache write failed", "key", key, "error", err)
		return err
	}
	observability.Cache().OnCacheSet(ctx, kind, len(data))
	return nil
}

// Load returns a stored bake result, images included.
func (r *Runner) Load(ctx context.Context, id string) (*Result, error) {
	doc, hit, err := r.Cache.Get(ctx, r.Keyer.ResultKey(id))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCache, err, "load bake %s", id)
	}
	if !hit {
		return nil, errors.New(errors.ErrCodeBakeNotFound, "bake %s not found", id)
	}
	var res Result
	if err := json.Unmarshal(doc, &res); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCache, err, "decode bake %s", id)
	}
	res.Images = make(map[int][]byte)
	for _, at := range res.Atlases {
		if at.File == "" {
			continue
		}
		data, err := r.Atlas(ctx, id, at.Index)
		if err != nil {
			return nil, err
		}
		res.Images[at.Index] = data
	}
	return &res, nil
}

// Atlas returns one encoded atlas of a stored bake.
func (r *Runner) Atlas(ctx context.Context, id string, index int) ([]byte, error) {
	data, hit, err := r.Cache.Get(ctx, r.Keyer.AtlasKey(id, index))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCache, err, "load atlas %d of %s", index, id)
	}
	if !hit {
		return nil, errors.New(errors.ErrCodeNotFound, "atlas %d of bake %s not found", index, id)
	}
	return data, nil
}

// Close releases resources held by the runner.
func (r *Runner) Close(ctx context.Context) error {
	var errs []string
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(ctx); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close runner: %s", strings.Join(errs, "; "))
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

// =============================================================================
// Helpers
// =============================================================================

// inputHash digests the unique inputs and the bytes of every source they
// reference, so editing an image invalidates cached bakes. Missing sources
// are an error only when strict.
func inputHash(p *Prepared, strict bool) (string, error) {
	type source struct {
		Name string `json:"name"`
		Hash string `json:"hash"`
	}
	names := make(map[string]bool)
	for _, in := range p.Unique {
		names[in.Source] = true
	}
	sources := make([]source, 0, len(names))
	for name := range names {
		data, err := os.ReadFile(p.Sampler.Resolve(name))
		if os.IsNotExist(err) && !strict {
			sources = append(sources, source{Name: name})
			continue
		}
		if os.IsNotExist(err) {
			return "", errors.Wrap(errors.ErrCodeFileNotFound, err, "source %s", name)
		}
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeImageIO, err, "read source %s", name)
		}
		sources = append(sources, source{Name: name, Hash: cache.Hash(data)})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })

	doc, err := json.Marshal(struct {
		Inputs  []atlas.Input `json:"inputs"`
		Index   []int         `json:"index"`
		Sources []source      `json:"sources"`
	}{p.Unique, p.Index, sources})
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "hash inputs")
	}
	return cache.Hash(doc), nil
}

// writeFiles writes the atlases, the result document and, when present,
// the trace into dir.
func writeFiles(dir, prefix string, res *Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeImageIO, err, "create %s", dir)
	}
	var files []string
	write := func(name string, data []byte) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeImageIO, err, "write %s", path)
		}
		files = append(files, path)
		return nil
	}

	for _, at := range res.Atlases {
		data, ok := res.Images[at.Index]
		if !ok {
			continue
		}
		if err := write(imageio.AtlasName(prefix, at.Index), data); err != nil {
			return nil, err
		}
	}
	doc, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode result")
	}
	if err := write(prefix+".json", doc); err != nil {
		return nil, err
	}
	if len(res.Trace) > 0 {
		if err := write(prefix+"_trace.txt", []byte(strings.Join(res.Trace, "\n")+"\n")); err != nil {
			return nil, err
		}
	}
	return files, nil
}
