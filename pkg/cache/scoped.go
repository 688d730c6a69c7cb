package cache

// ScopedKeyer wraps a Keyer with a prefix so several tenants, or several
// deployments sharing one Redis, keep separate namespaces.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "staging:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// BakeKey generates a prefixed bake key.
func (k *ScopedKeyer) BakeKey(inputHash string, opts BakeKeyOpts) string {
	return k.prefix + k.inner.BakeKey(inputHash, opts)
}

// ResultKey generates a prefixed result key.
func (k *ScopedKeyer) ResultKey(bakeID string) string {
	return k.prefix + k.inner.ResultKey(bakeID)
}

// AtlasKey generates a prefixed atlas key.
func (k *ScopedKeyer) AtlasKey(bakeID string, index int) string {
	return k.prefix + k.inner.AtlasKey(bakeID, index)
}
