// Package scene implements an interactive pan/zoom engine over a virtual
// raster far too large to hold in memory. A Scene owns a Viewport (the
// visible window and its fixed-size pixel buffer) and a cache (a larger
// pre-rendered window refreshed by a background worker). Drawing never
// blocks on the worker: while no cache buffer covers the viewport, frames
// are served by the Source's fast sampling fallback.
package scene

import (
	"image"
	"image/draw"
	"sync"

	"go.uber.org/zap"
)

// Scene ties a Source, a Viewport and the cache state machine together.
type Scene struct {
	mu   sync.RWMutex
	size image.Point

	src Source
	log *zap.Logger

	viewport *Viewport
	cache    *cache
}

// New creates a Scene over src. The zero scene has no size and an
// uninitialized cache; callers typically SetSceneSize, size the viewport,
// then Initialize and Start.
func New(src Source, log *zap.Logger) *Scene {
	s := &Scene{src: src, log: log}
	s.viewport = &Viewport{scene: s, zoom: 1}
	s.cache = &cache{scene: s, wake: make(chan struct{}, 1)}
	return s
}

// SetSceneSize sets the scene bounds in scene units.
func (s *Scene) SetSceneSize(w, h int) {
	s.mu.Lock()
	s.size = image.Pt(w, h)
	s.mu.Unlock()
}

// SceneSize returns the scene bounds in scene units.
func (s *Scene) SceneSize() image.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Viewport returns the scene's viewport.
func (s *Scene) Viewport() *Viewport {
	return s.viewport
}

// Initialize moves the cache out of its uninitialized state. Calling it
// again is a no-op.
func (s *Scene) Initialize() {
	c := s.cache
	c.mu.Lock()
	if c.state == CacheUninitialized {
		c.setState(CacheInitialized)
	}
	c.mu.Unlock()
}

// Start launches the cache worker, first stopping any worker a previous
// Start left running.
func (s *Scene) Start() {
	s.cache.start()
}

// Stop tells the worker to exit and blocks until it has. A refill in
// flight is allowed to finish first.
func (s *Scene) Stop() {
	s.cache.stop()
}

// SetSuspend pauses cache refills. Suspending wins from any state;
// resuming only lifts a suspension and leaves every other state alone.
func (s *Scene) SetSuspend(suspend bool) {
	s.cache.setSuspend(suspend)
}

// Invalidate discards the cache buffer and any in-flight refill's
// relevance, forcing the next draw to request a fresh fill.
func (s *Scene) Invalidate() {
	s.cache.invalidate()
}

// CacheState reports the cache's current state.
func (s *Scene) CacheState() CacheState {
	c := s.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Draw advances the cache state machine and paints the viewport buffer
// onto dst. With a nil dst the state machine still advances but nothing
// is painted.
func (s *Scene) Draw(dst draw.Image) {
	s.viewport.draw(dst)
}

// Close stops the worker and drops both buffers. The scene can be
// restarted with Start, but the usual lifetime ends here.
func (s *Scene) Close() {
	s.cache.stop()

	c := s.cache
	c.mu.Lock()
	c.buf = nil
	if c.state != CacheUninitialized {
		c.setState(CacheInitialized)
	}
	c.mu.Unlock()

	v := s.viewport
	v.mu.Lock()
	v.buf = nil
	v.mu.Unlock()
}
