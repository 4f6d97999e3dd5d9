package scene

import (
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
)

// cache holds the pre-rendered window around the viewport and the state
// machine coordinating its background refills. Its mutex is the second lock
// domain; it is never held together with the viewport's.
type cache struct {
	mu     sync.Mutex
	window image.Rectangle
	buf    *image.RGBA
	state  CacheState
	wake   chan struct{}

	workerMu sync.Mutex
	quit     chan struct{}
	done     chan struct{}

	scene *Scene
}

// setState logs and applies a state transition. Caller holds c.mu.
func (c *cache) setState(next CacheState) {
	c.scene.log.Debug("cache state",
		zap.Stringer("from", c.state),
		zap.Stringer("to", next))
	c.state = next
}

// signal wakes the worker without blocking. The single-slot channel latches
// at most one pending wake, so a wake sent while the worker is busy filling
// is not lost.
func (c *cache) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// startUpdateLocked requests a refill: the held buffer is dropped before
// the state changes, so StartUpdate is never observed with a buffer.
// Caller holds c.mu.
func (c *cache) startUpdateLocked() {
	c.buf = nil
	c.setState(CacheStartUpdate)
	c.signal()
}

// update decides how this frame gets its pixels: reuse the cache buffer if
// it covers the viewport, otherwise request a refill and fall back to the
// source's direct sampling. It never waits for the worker.
func (c *cache) update(v *Viewport) {
	viewport := v.Window()

	var (
		buf    *image.RGBA
		window image.Rectangle
	)
	c.mu.Lock()
	switch c.state {
	case CacheUninitialized:
		c.mu.Unlock()
		return
	case CacheInitialized:
		c.startUpdateLocked()
	case CacheStartUpdate, CacheInUpdate, CacheSuspended:
	case CacheReady:
		if c.buf == nil || !viewport.In(c.window) {
			c.startUpdateLocked()
		} else {
			buf = c.buf
			window = c.window
		}
	}
	c.mu.Unlock()

	if buf == nil {
		v.sample()
		return
	}
	v.blit(buf, window)
}

func (c *cache) invalidate() {
	c.mu.Lock()
	c.buf = nil
	c.setState(CacheInitialized)
	c.signal()
	c.mu.Unlock()
}

func (c *cache) setSuspend(suspend bool) {
	c.mu.Lock()
	if suspend {
		c.setState(CacheSuspended)
	} else if c.state == CacheSuspended {
		c.setState(CacheInitialized)
	}
	c.mu.Unlock()
}

// start spawns the worker goroutine, stopping a previous one first so
// restarting never leaks a worker.
func (c *cache) start() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	c.stopLocked()

	// Drop a wake latched while no worker was listening.
	select {
	case <-c.wake:
	default:
	}

	quit := make(chan struct{})
	done := make(chan struct{})
	c.quit = quit
	c.done = done
	go func() {
		defer close(done)
		c.run(quit)
	}()
	c.scene.log.Debug("cache worker started")
}

func (c *cache) stop() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	c.stopLocked()
}

// stopLocked joins the current worker, if any. A fill in flight finishes
// (and publishes) before the join returns. Caller holds workerMu.
func (c *cache) stopLocked() {
	if c.quit == nil {
		return
	}
	close(c.quit)
	<-c.done
	c.quit = nil
	c.done = nil
	c.scene.log.Debug("cache worker stopped")
}

// run is the worker loop: wait for a refill request, produce a buffer,
// publish it. One worker exists per started cache.
func (c *cache) run(quit <-chan struct{}) {
	for {
		if !c.awaitStart(quit) {
			return
		}
		c.refill()
	}
}

// awaitStart blocks until a refill is wanted or quit closes. The state is
// re-checked before each wait, so the StartUpdate re-arm after an
// allocation failure resumes the loop without any wake.
func (c *cache) awaitStart(quit <-chan struct{}) bool {
	for {
		select {
		case <-quit:
			return false
		default:
		}

		c.mu.Lock()
		pending := c.state == CacheStartUpdate
		c.mu.Unlock()
		if pending {
			return true
		}

		select {
		case <-quit:
			return false
		case <-c.wake:
		}
	}
}

// refill runs one produce-and-publish cycle. Each step re-checks that the
// cycle is still wanted; an invalidate or suspend at any point causes the
// result to be discarded instead of published.
func (c *cache) refill() {
	c.mu.Lock()
	if c.state != CacheStartUpdate {
		c.mu.Unlock()
		return
	}
	c.setState(CacheInUpdate)
	c.buf = nil
	c.mu.Unlock()

	viewport := c.scene.viewport.Window()

	c.mu.Lock()
	if c.state != CacheInUpdate {
		c.mu.Unlock()
		return
	}
	window := c.scene.src.CacheWindow(viewport)
	c.window = window
	c.mu.Unlock()

	if window.Empty() {
		c.scene.log.Warn("empty cache window, refill abandoned",
			zap.Stringer("viewport", viewport))
		return
	}

	start := time.Now()
	buf, err := c.scene.src.FillCache(window)
	if err != nil {
		c.mu.Lock()
		c.scene.src.CacheAllocationFailed(err)
		if c.state == CacheInUpdate {
			c.setState(CacheStartUpdate)
		}
		c.mu.Unlock()
		c.scene.log.Warn("cache fill failed",
			zap.Stringer("window", window),
			zap.Error(err))
		return
	}
	if buf == nil {
		// Nothing produced and nothing failed; stay parked until an
		// invalidate re-arms the cycle.
		c.scene.log.Warn("cache fill returned no buffer",
			zap.Stringer("window", window))
		return
	}

	c.mu.Lock()
	if c.state != CacheInUpdate {
		c.mu.Unlock()
		c.scene.log.Debug("cache fill superseded",
			zap.Stringer("window", window))
		return
	}
	c.buf = buf
	c.setState(CacheReady)
	c.mu.Unlock()

	c.scene.log.Debug("cache filled",
		zap.Stringer("window", window),
		zap.Duration("elapsed", time.Since(start)))
}
