// Package geom holds the pure window arithmetic behind viewport panning and
// zooming: clamping an origin move to the scene bounds and computing the
// clamped window that results from rescaling about a focus point.
package geom

import "image"

// PointF is an x, y pair with sub-pixel precision. Zoom focus points are
// expressed this way, in viewport buffer pixel coordinates.
type PointF struct {
	X, Y float64
}

// ClampOrigin moves window's top-left corner to (x, y) and pushes the result
// back inside a scene of the given size. The window's extent is preserved.
func ClampOrigin(window image.Rectangle, x, y int, scene image.Point) image.Rectangle {
	w := window.Dx()
	h := window.Dy()
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x+w > scene.X {
		x = scene.X - w
	}
	if y+h > scene.Y {
		y = scene.Y - h
	}
	return image.Rect(x, y, x+w, y+h)
}

// ZoomParams describes one zoom request against the current viewport
// geometry. Window and Scene are in scene units, Physical is the buffer size
// in pixels, and Focus is the anchor point in buffer pixel coordinates. Zoom
// is the scene-units-per-pixel ratio; a larger value shows more of the scene
// at lower magnification.
type ZoomParams struct {
	Window    image.Rectangle
	Zoom      float64
	Factor    float64
	Focus     PointF
	Physical  image.Point
	Scene     image.Point
	MinExtent float64
}

// ZoomWindow scales p.Zoom by p.Factor and returns the window that keeps the
// scene point under p.Focus stationary, along with the effective zoom. The
// width is clamped to the scene width and then to MinExtent, re-deriving the
// zoom each time; the height follows from the buffer's aspect ratio and is
// clamped the same way, re-deriving width and zoom. Finally the window is
// translated back inside the scene, extent preserved. Factor 1 is a no-op.
func ZoomWindow(p ZoomParams) (image.Rectangle, float64) {
	if p.Factor == 1 || p.Physical.X == 0 || p.Physical.Y == 0 {
		return p.Window, p.Zoom
	}

	physW := float64(p.Physical.X)
	physH := float64(p.Physical.Y)
	sceneW := float64(p.Scene.X)
	sceneH := float64(p.Scene.Y)

	zoom := p.Zoom * p.Factor

	// Scene point currently under the focus pixel; it must stay put.
	focusX := float64(p.Window.Min.X) + (p.Focus.X/physW)*float64(p.Window.Dx())
	focusY := float64(p.Window.Min.Y) + (p.Focus.Y/physH)*float64(p.Window.Dy())

	width := physW * zoom
	if width > sceneW {
		width = sceneW
		zoom = width / physW
	}
	if width < p.MinExtent {
		width = p.MinExtent
		zoom = width / physW
	}

	height := width * (physH / physW)
	if height > sceneH {
		height = sceneH
		width = height * (physW / physH)
		zoom = width / physW
	}
	if height < p.MinExtent {
		height = p.MinExtent
		width = height * (physW / physH)
		zoom = width / physW
	}

	left := focusX - (p.Focus.X/physW)*width
	top := focusY - (p.Focus.Y/physH)*height
	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}
	right := left + width
	bottom := top + height
	if right > sceneW {
		right = sceneW
		left = right - width
	}
	if bottom > sceneH {
		bottom = sceneH
		top = bottom - height
	}

	return image.Rect(int(left), int(top), int(right), int(bottom)), zoom
}
