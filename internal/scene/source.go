package scene

import (
	"errors"
	"image"
	"image/draw"
)

// ErrAllocation reports that a Source could not allocate or produce the
// buffer for a requested cache region. The worker reacts by notifying the
// source and re-arming the refill, expecting the next CacheWindow to be
// cheaper.
var ErrAllocation = errors.New("scene: cache allocation failed")

// Source produces pixels for a Scene. A Scene calls it from both the draw
// path and the cache worker; implementations must be safe for concurrent
// use.
type Source interface {
	// FillCache renders region into a newly allocated buffer, one pixel
	// per scene unit, with bounds starting at the origin. It may be
	// arbitrarily slow; the Scene always calls it with no locks held.
	// Errors are treated as allocation failures.
	FillCache(region image.Rectangle) (*image.RGBA, error)

	// CacheAllocationFailed is invoked under the cache lock after a failed
	// FillCache, before the refill is retried. A typical implementation
	// shrinks the window it will return from the next CacheWindow call.
	CacheAllocationFailed(err error)

	// CacheWindow returns the region worth caching for the given viewport
	// window: a superset of it, clamped to the scene, sized to what the
	// source can afford to fill. Called under the cache lock, so it must
	// return quickly and never touch I/O.
	CacheWindow(viewport image.Rectangle) image.Rectangle

	// DrawSample paints a fast low-resolution rendition of region into
	// dst. It runs on the draw path while no cache buffer is usable and
	// must not block on I/O.
	DrawSample(dst *image.RGBA, region image.Rectangle)

	// DrawComplete is notified after each successful paint of the
	// viewport buffer onto a destination surface.
	DrawComplete(dst draw.Image)
}
