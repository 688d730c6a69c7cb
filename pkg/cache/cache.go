// Package cache stores finished bakes so identical requests are served
// without re-packing.
//
// Three backends implement [Cache]: [FileCache] for the CLI, [RedisCache]
// for servers that share results across instances, and [NullCache] when
// caching is off. A [Keyer] derives keys from the bake inputs and options.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a byte store with per-entry expiry.
type Cache interface {
	// Get returns the value and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// TTLs per entry kind.
const (
	TTLBake  = 7 * 24 * time.Hour
	TTLAtlas = 7 * 24 * time.Hour
)

// BakeKeyOpts holds every option that changes a bake's output.
type BakeKeyOpts struct {
	AtlasSize               int     `json:"atlas_size"`
	Margin                  int     `json:"margin"`
	ScaleMargin             bool    `json:"scale_margin"`
	TextureFit              float64 `json:"texture_fit"`
	SkylineSpread           float64 `json:"skyline_spread"`
	PackEfficiency          float64 `json:"pack_efficiency"`
	OverhangWeight          float64 `json:"overhang_weight"`
	NeighborhoodWasteWeight float64 `json:"neighborhood_waste_weight"`
	TopWasteWeight          float64 `json:"top_waste_weight"`
	JoinDuplicates          bool    `json:"join_duplicates"`
	LayoutOnly              bool    `json:"layout_only"`
	// Trace separates bakes that record a step trace.
	Trace bool `json:"trace"`
}

// Keyer derives cache keys.
type Keyer interface {
	// BakeKey addresses a bake by a hash of its inputs and its options.
	BakeKey(inputHash string, opts BakeKeyOpts) string
	// ResultKey addresses a stored bake result by id.
	ResultKey(bakeID string) string
	// AtlasKey addresses one encoded atlas of a bake.
	AtlasKey(bakeID string, index int) string
}

// DefaultKeyer is the unscoped key layout.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default key layout.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// BakeKey hashes the input hash together with the options.
func (DefaultKeyer) BakeKey(inputHash string, opts BakeKeyOpts) string {
	return hashKey("bake", inputHash, opts)
}

// ResultKey returns "result:<id>".
func (DefaultKeyer) ResultKey(bakeID string) string {
	return "result:" + bakeID
}

// AtlasKey returns "atlas:<id>:<index>".
func (DefaultKeyer) AtlasKey(bakeID string, index int) string {
	return fmt.Sprintf("atlas:%s:%d", bakeID, index)
}
