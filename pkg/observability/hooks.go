// Package observability provides hooks for metrics, tracing, and logging.
//
// Libraries emit events through the registered hooks; main registers real
// implementations at startup. Nothing in the engine depends on a concrete
// metrics or tracing backend.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetBakeHooks(&myBakeHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Bake().OnCycleStart(ctx, cycle, items)
//	// ... sort, pack, merge ...
//	observability.Bake().OnCycleComplete(ctx, cycle, placed, failed, duration)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Bake Hooks
// =============================================================================

// BakeHooks receives events from the packing engine.
type BakeHooks interface {
	// Cycle events
	OnCycleStart(ctx context.Context, cycle, items int)
	OnCycleComplete(ctx context.Context, cycle, placed, failed int, duration time.Duration)

	// OnGroupPacked fires once per packed group, from the worker goroutine.
	OnGroupPacked(ctx context.Context, resolution, placed, failed int, duration time.Duration)

	// OnAtlasMerged fires once per atlas, in atlas order.
	OnAtlasMerged(ctx context.Context, index, resolution, items int)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the API server.
type HTTPHooks interface {
	// OnRequest records an incoming request after routing.
	OnRequest(ctx context.Context, method, route string)

	// OnResponse records the response status and latency.
	OnResponse(ctx context.Context, method, route string, statusCode int, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopBakeHooks is a no-op implementation of BakeHooks.
type NoopBakeHooks struct{}

func (NoopBakeHooks) OnCycleStart(context.Context, int, int)                        {}
func (NoopBakeHooks) OnCycleComplete(context.Context, int, int, int, time.Duration) {}
func (NoopBakeHooks) OnGroupPacked(context.Context, int, int, int, time.Duration)   {}
func (NoopBakeHooks) OnAtlasMerged(context.Context, int, int, int)                  {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	bakeHooks  BakeHooks  = NoopBakeHooks{}
	cacheHooks CacheHooks = NoopCacheHooks{}
	httpHooks  HTTPHooks  = NoopHTTPHooks{}
	hooksMu    sync.RWMutex
)

// SetBakeHooks registers custom bake hooks.
// Call it once at startup, before any bake runs.
func SetBakeHooks(h BakeHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		bakeHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Bake returns the registered bake hooks.
func Bake() BakeHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return bakeHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	bakeHooks = NoopBakeHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
