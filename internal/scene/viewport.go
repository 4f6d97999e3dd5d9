package scene

import (
	"image"
	"image/draw"
	"sync"

	xdraw "golang.org/x/image/draw"

	"gigascene/internal/geom"
)

// minimumExtent bounds the zoom window's width and height in scene units.
// Note the value reads like a pixel count but is compared against
// scene-unit extents.
const minimumExtent = 50

// Viewport is the visible window into the scene plus the fixed-size pixel
// buffer it is rendered into. Its mutex is one of the two lock domains; the
// cache's is the other, and no code path holds both at once except the blit,
// which only carries cache values captured beforehand.
type Viewport struct {
	mu     sync.Mutex
	window image.Rectangle
	zoom   float64
	buf    *image.RGBA

	scene *Scene
}

// SetOrigin moves the window's top-left corner to (x, y) in scene units,
// clamped so the window stays inside the scene. The extent is unchanged.
func (v *Viewport) SetOrigin(x, y int) {
	scene := v.scene.SceneSize()
	v.mu.Lock()
	v.window = geom.ClampOrigin(v.window, x, y, scene)
	v.mu.Unlock()
}

// Origin returns the window's top-left corner in scene units.
func (v *Viewport) Origin() image.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.window.Min
}

// SetSize replaces the pixel buffer with a fresh w x h one and resizes the
// window to w x h scene units at the current origin. The zoom ratio is left
// alone; the next ZoomAt re-derives it.
func (v *Viewport) SetSize(w, h int) {
	v.mu.Lock()
	v.buf = image.NewRGBA(image.Rect(0, 0, w, h))
	v.window.Max = v.window.Min.Add(image.Pt(w, h))
	v.mu.Unlock()
}

// Size returns the window extent in scene units.
func (v *Viewport) Size() image.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.window.Size()
}

// PhysicalSize returns the pixel buffer dimensions, or zero before SetSize.
func (v *Viewport) PhysicalSize() image.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.buf == nil {
		return image.Point{}
	}
	return v.buf.Bounds().Size()
}

// Window returns the visible window in scene units.
func (v *Viewport) Window() image.Rectangle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.window
}

// Zoom returns the scene-units-per-pixel ratio. Larger means more scene per
// pixel, so less magnification.
func (v *Viewport) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

// ZoomAt multiplies the zoom ratio by factor, keeping the scene point under
// the focus pixel stationary and the window inside the scene. A factor of 1
// or an unsized viewport is a no-op.
func (v *Viewport) ZoomAt(factor float64, focus geom.PointF) {
	if factor == 1 {
		return
	}
	scene := v.scene.SceneSize()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.buf == nil {
		return
	}
	v.window, v.zoom = geom.ZoomWindow(geom.ZoomParams{
		Window:    v.window,
		Zoom:      v.zoom,
		Factor:    factor,
		Focus:     focus,
		Physical:  v.buf.Bounds().Size(),
		Scene:     scene,
		MinExtent: minimumExtent,
	})
}

// draw runs one frame: let the cache update the viewport buffer (blit or
// sample fallback), then paint the buffer onto dst and notify the source.
func (v *Viewport) draw(dst draw.Image) {
	v.scene.cache.update(v)

	v.mu.Lock()
	defer v.mu.Unlock()
	if dst == nil || v.buf == nil {
		return
	}
	draw.Draw(dst, v.buf.Bounds(), v.buf, image.Point{}, draw.Src)
	v.scene.src.DrawComplete(dst)
}

// sample fills the viewport buffer via the source's fast fallback.
func (v *Viewport) sample() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.buf == nil {
		return
	}
	v.scene.src.DrawSample(v.buf, v.window)
}

// blit scales the covering part of the cache buffer into the viewport
// buffer. cacheBuf and cacheWindow were captured under the cache lock; the
// buffer is treated as immutable from here on.
func (v *Viewport) blit(cacheBuf *image.RGBA, cacheWindow image.Rectangle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.buf == nil {
		return
	}
	src := v.window.Sub(cacheWindow.Min)
	dst := v.buf.Bounds()
	draw.Draw(v.buf, dst, image.Black, image.Point{}, draw.Src)
	xdraw.ApproxBiLinear.Scale(v.buf, dst, cacheBuf, src, xdraw.Src, nil)
}
