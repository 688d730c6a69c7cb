// Package manifest loads bake descriptions from TOML or JSON.
//
// A manifest lists the images to bake and, optionally, settings that
// override the defaults:
//
//	[settings]
//	atlas_size = 2048
//	margin = 16
//
//	[[item]]
//	source = "textures/crate.png"
//	point = [4.0, 0.0, -2.5]
//	sort_group = 1
//	crop = { min = [0.0, 0.0], max = [0.5, 1.0] }
//	max_major_size = 512
//
// Sources are resolved relative to the manifest's directory. An item without
// an explicit size takes the decoded source size scaled by its crop window.
package manifest

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/atlasbake/pkg/atlas"
	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
	"github.com/matzehuels/atlasbake/pkg/errors"
)

// DefaultMaxMajorSize caps the larger side of a derived item size.
const DefaultMaxMajorSize = 1280

// Manifest is a parsed bake description.
type Manifest struct {
	Settings Settings `toml:"settings" json:"settings"`
	Items    []Item   `toml:"item" json:"items"`

	// Dir is the directory sources are resolved against.
	Dir string `toml:"-" json:"-"`
	// Raw is the file content the manifest was parsed from.
	Raw []byte `toml:"-" json:"-"`
}

// Item is one image to bake.
type Item struct {
	Source    string       `toml:"source" json:"source"`
	Point     mgl32.Vec3   `toml:"point" json:"point"`
	SortGroup int          `toml:"sort_group" json:"sort_group"`
	Crop      *geom.UVRect `toml:"crop" json:"crop,omitempty"`
	// Size overrides the size derived from the source.
	Size *geom.Size `toml:"size" json:"size,omitempty"`
	// MaxMajorSize caps the larger side of a derived size. Zero uses the
	// manifest setting.
	MaxMajorSize int `toml:"max_major_size" json:"max_major_size,omitempty"`
}

// Window returns the crop window, defaulting to the whole image.
func (it Item) Window() geom.UVRect {
	if it.Crop == nil || it.Crop.IsZero() {
		return geom.FullUV()
	}
	return *it.Crop
}

// Settings overrides bake options. Nil fields keep the caller's value.
type Settings struct {
	AtlasSize               *int     `toml:"atlas_size" json:"atlas_size,omitempty"`
	Margin                  *int     `toml:"margin" json:"margin,omitempty"`
	ScaleMargin             *bool    `toml:"scale_margin" json:"scale_margin,omitempty"`
	TextureFit              *float64 `toml:"texture_fit" json:"texture_fit,omitempty"`
	SkylineSpread           *float64 `toml:"skyline_spread" json:"skyline_spread,omitempty"`
	PackEfficiency          *float64 `toml:"pack_efficiency" json:"pack_efficiency,omitempty"`
	OverhangWeight          *float64 `toml:"overhang_weight" json:"overhang_weight,omitempty"`
	NeighborhoodWasteWeight *float64 `toml:"neighborhood_waste_weight" json:"neighborhood_waste_weight,omitempty"`
	TopWasteWeight          *float64 `toml:"top_waste_weight" json:"top_waste_weight,omitempty"`
	JoinDuplicates          *bool    `toml:"join_duplicates" json:"join_duplicates,omitempty"`
	MaxMajorSize            *int     `toml:"max_major_size" json:"max_major_size,omitempty"`
}

// Apply copies every set field onto cfg.
func (s Settings) Apply(cfg *atlas.Config) {
	setInt(&cfg.AtlasSize, s.AtlasSize)
	setInt(&cfg.Margin, s.Margin)
	setBool(&cfg.ScaleMargin, s.ScaleMargin)
	setFloat(&cfg.TextureFit, s.TextureFit)
	setFloat(&cfg.SkylineSpread, s.SkylineSpread)
	setFloat(&cfg.PackEfficiency, s.PackEfficiency)
	setFloat(&cfg.OverhangWeight, s.OverhangWeight)
	setFloat(&cfg.NeighborhoodWasteWeight, s.NeighborhoodWasteWeight)
	setFloat(&cfg.TopWasteWeight, s.TopWasteWeight)
}

// Merge returns s with every field set in o taking precedence.
func (s Settings) Merge(o Settings) Settings {
	pick := func(a, b *int) *int {
		if b != nil {
			return b
		}
		return a
	}
	pickF := func(a, b *float64) *float64 {
		if b != nil {
			return b
		}
		return a
	}
	pickB := func(a, b *bool) *bool {
		if b != nil {
			return b
		}
		return a
	}
	return Settings{
		AtlasSize:               pick(s.AtlasSize, o.AtlasSize),
		Margin:                  pick(s.Margin, o.Margin),
		ScaleMargin:             pickB(s.ScaleMargin, o.ScaleMargin),
		TextureFit:              pickF(s.TextureFit, o.TextureFit),
		SkylineSpread:           pickF(s.SkylineSpread, o.SkylineSpread),
		PackEfficiency:          pickF(s.PackEfficiency, o.PackEfficiency),
		OverhangWeight:          pickF(s.OverhangWeight, o.OverhangWeight),
		NeighborhoodWasteWeight: pickF(s.NeighborhoodWasteWeight, o.NeighborhoodWasteWeight),
		TopWasteWeight:          pickF(s.TopWasteWeight, o.TopWasteWeight),
		JoinDuplicates:          pickB(s.JoinDuplicates, o.JoinDuplicates),
		MaxMajorSize:            pick(s.MaxMajorSize, o.MaxMajorSize),
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Load reads a manifest from path. ".json" files are parsed as JSON,
// everything else as TOML.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "manifest %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read manifest %s", path)
	}
	m, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, err
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// Format is a manifest encoding.
type Format string

// Supported manifest formats.
const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatTOML
}

// Parse decodes and validates a manifest.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse json manifest")
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse toml manifest")
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.New(errors.ErrCodeInvalidManifest, "unknown manifest key %q", undecoded[0].String())
		}
	default:
		return nil, errors.New(errors.ErrCodeInvalidManifest, "unknown manifest format %q", format)
	}
	m.Raw = data
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadSettings reads a TOML file holding only settings, as used for
// user-level defaults.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Settings{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Settings{}, errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q in %s", undecoded[0].String(), path)
	}
	return s, nil
}

// Validate checks items for missing sources and malformed windows.
func (m *Manifest) Validate() error {
	if len(m.Items) == 0 {
		return errors.New(errors.ErrCodeInvalidManifest, "manifest has no items")
	}
	for i, it := range m.Items {
		if strings.TrimSpace(it.Source) == "" {
			return errors.New(errors.ErrCodeInvalidManifest, "item %d: missing source", i)
		}
		if it.Crop != nil && !it.Crop.IsZero() && !it.Crop.Valid() {
			return errors.New(errors.ErrCodeInvalidManifest, "item %d (%s): crop %v is outside [0,1] or empty", i, it.Source, *it.Crop)
		}
		if it.Size != nil && it.Size.Empty() {
			return errors.New(errors.ErrCodeInvalidManifest, "item %d (%s): size %v is empty", i, it.Source, *it.Size)
		}
		if it.MaxMajorSize < 0 {
			return errors.New(errors.ErrCodeInvalidManifest, "item %d (%s): negative max_major_size", i, it.Source)
		}
	}
	return nil
}
