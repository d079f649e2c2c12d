// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about board loads and mutations, cache operations, and
// outgoing HTTP calls.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetBoardHooks(&myBoardHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Board().OnLoadStart(ctx, "second")
//	// ... fetch and initialize ...
//	observability.Board().OnLoadComplete(ctx, "second", count, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Board Hooks
// =============================================================================

// BoardHooks receives events from board screens.
type BoardHooks interface {
	// Load events
	OnLoadStart(ctx context.Context, variant string)
	OnLoadComplete(ctx context.Context, variant string, posterCount int, duration time.Duration, err error)

	// OnMutation records one applied or rejected intent (move, resize, toggle, ...).
	OnMutation(ctx context.Context, variant, op string, err error)
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

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopBoardHooks is a no-op implementation of BoardHooks.
type NoopBoardHooks struct{}

func (NoopBoardHooks) OnLoadStart(context.Context, string)                               {}
func (NoopBoardHooks) OnLoadComplete(context.Context, string, int, time.Duration, error) {}
func (NoopBoardHooks) OnMutation(context.Context, string, string, error)                {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	boardHooks BoardHooks = NoopBoardHooks{}
	cacheHooks CacheHooks = NoopCacheHooks{}
	httpHooks  HTTPHooks  = NoopHTTPHooks{}
	hooksMu    sync.RWMutex
)

// SetBoardHooks registers custom board hooks.
// This should be called once at application startup before any screen is mounted.
func SetBoardHooks(h BoardHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		boardHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Board returns the registered board hooks.
func Board() BoardHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return boardHooks
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
	boardHooks = NoopBoardHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
