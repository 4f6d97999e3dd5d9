// Package image_source adapts a libvips-readable raster on disk into a
// scene.Source. Cache fills extract the requested region at full
// resolution; the sampling fallback serves scaled slices of a bounded
// in-memory preview so the draw path never touches the file.
package image_source

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"gigascene/internal/scene"
)

const (
	DefaultMarginPx     = 1024
	DefaultBudgetBytes  = 256 << 20
	DefaultPreviewMaxPx = 1600

	fillQuality    = 90
	previewQuality = 85

	// maxShrink caps how far allocation failures can halve the cache
	// margin; beyond it the window is just the viewport.
	maxShrink = 6

	allocBackoff = 250 * time.Millisecond
)

// Options configures a VipsSource. Size and Preview are optional: a zero
// Size is probed from the file and a nil Preview is built from it.
type Options struct {
	MarginPx     int
	BudgetBytes  int64
	PreviewMaxPx int
	Size         image.Point
	Preview      *image.RGBA
}

// VipsSource implements scene.Source for a single raster file.
type VipsSource struct {
	path    string
	size    image.Point
	margin  int
	budget  int64
	preview *image.RGBA
	logger  *zap.Logger

	mu     sync.Mutex
	shrink int

	frames atomic.Int64
}

// Open prepares a source for the raster at path.
func Open(path string, opts Options, logger *zap.Logger) (*VipsSource, error) {
	if opts.MarginPx <= 0 {
		opts.MarginPx = DefaultMarginPx
	}
	if opts.BudgetBytes <= 0 {
		opts.BudgetBytes = DefaultBudgetBytes
	}
	if opts.PreviewMaxPx <= 0 {
		opts.PreviewMaxPx = DefaultPreviewMaxPx
	}

	size := opts.Size
	if size == (image.Point{}) {
		w, h, err := Probe(path)
		if err != nil {
			return nil, fmt.Errorf("failed to probe image: %w", err)
		}
		size = image.Pt(w, h)
	}

	preview := opts.Preview
	if preview == nil {
		var err error
		preview, err = BuildPreview(path, opts.PreviewMaxPx)
		if err != nil {
			return nil, err
		}
	}

	return &VipsSource{
		path:    path,
		size:    size,
		margin:  opts.MarginPx,
		budget:  opts.BudgetBytes,
		preview: preview,
		logger:  logger,
	}, nil
}

// Size returns the raster dimensions in pixels, which are the scene units.
func (s *VipsSource) Size() image.Point {
	return s.size
}

// Preview returns the decoded preview, for sharing across sources.
func (s *VipsSource) Preview() *image.RGBA {
	return s.preview
}

// Frames returns how many viewport paints completed.
func (s *VipsSource) Frames() int64 {
	return s.frames.Load()
}

// FillCache extracts region from the file at full resolution.
func (s *VipsSource) FillCache(region image.Rectangle) (*image.RGBA, error) {
	if need := cost(region); need > s.budget {
		if s.shrinkLevel() >= maxShrink {
			// The window cannot shrink any further; pace the retries.
			time.Sleep(allocBackoff)
		}
		return nil, fmt.Errorf("%w: %dx%d region needs %d bytes, budget is %d",
			scene.ErrAllocation, region.Dx(), region.Dy(), need, s.budget)
	}

	img, err := loadImage(s.path, vips.AccessRandom)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	if err := img.ExtractArea(region.Min.X, region.Min.Y, region.Dx(), region.Dy()); err != nil {
		return nil, fmt.Errorf("failed to extract area: %w", err)
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = fillQuality
	jpegOpts.Interlace = false
	data, err := img.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode region: %w", err)
	}
	return toRGBA(decoded), nil
}

// CacheAllocationFailed raises the shrink level so the next CacheWindow
// asks for less.
func (s *VipsSource) CacheAllocationFailed(err error) {
	s.mu.Lock()
	if s.shrink < maxShrink {
		s.shrink++
	}
	shrink := s.shrink
	s.mu.Unlock()
	s.logger.Warn("cache allocation failed, shrinking margin",
		zap.Int("shrink", shrink),
		zap.Error(err))
}

// CacheWindow pads the viewport by the current margin, clamped to the
// scene and to the byte budget.
func (s *VipsSource) CacheWindow(viewport image.Rectangle) image.Rectangle {
	return growWindow(viewport, s.size, s.margin, s.shrinkLevel(), s.budget)
}

// DrawSample paints the region's slice of the preview into dst, scaled to
// fill it.
func (s *VipsSource) DrawSample(dst *image.RGBA, region image.Rectangle) {
	bounds := dst.Bounds()
	draw.Draw(dst, bounds, image.Black, image.Point{}, draw.Src)

	pb := s.preview.Bounds()
	sx := float64(pb.Dx()) / float64(s.size.X)
	sy := float64(pb.Dy()) / float64(s.size.Y)
	src := image.Rect(
		int(float64(region.Min.X)*sx),
		int(float64(region.Min.Y)*sy),
		int(float64(region.Max.X)*sx),
		int(float64(region.Max.Y)*sy),
	)
	xdraw.NearestNeighbor.Scale(dst, bounds, s.preview, src, xdraw.Src, nil)
}

// DrawComplete counts finished frames.
func (s *VipsSource) DrawComplete(dst draw.Image) {
	s.frames.Add(1)
}

func (s *VipsSource) shrinkLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shrink
}

// toRGBA converts a decoded image to RGBA with zero-based bounds.
func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	return out
}
