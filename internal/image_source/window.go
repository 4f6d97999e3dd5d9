package image_source

import "image"

// growWindow pads viewport by margin scene units on every side and clamps
// the result to the scene, halving the margin until the padded window's
// pixel cost fits the budget. At margin zero the clamped viewport is
// returned even when over budget; the fill's own budget check reports that
// case.
func growWindow(viewport image.Rectangle, scene image.Point, margin, shrink int, budget int64) image.Rectangle {
	margin >>= shrink
	bounds := image.Rectangle{Max: scene}
	for {
		window := viewport.Inset(-margin).Intersect(bounds)
		if cost(window) <= budget || margin == 0 {
			return window
		}
		margin /= 2
	}
}

// cost is the buffer size in bytes for a region, four bytes per pixel.
func cost(r image.Rectangle) int64 {
	return int64(r.Dx()) * int64(r.Dy()) * 4
}
