package scene

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gigascene/internal/geom"
)

var (
	fillColor   = color.RGBA{G: 255, A: 255}
	sampleColor = color.RGBA{R: 255, A: 255}
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// fakeSource is a controllable Source: fills produce solid green buffers,
// samples paint solid red, and the fill and window behaviors can be swapped
// per test.
type fakeSource struct {
	mu        sync.Mutex
	fill      func(region image.Rectangle) (*image.RGBA, error)
	window    func(viewport image.Rectangle) image.Rectangle
	fills     []image.Rectangle
	samples   []image.Rectangle
	completes int
	allocErrs []error
}

func (f *fakeSource) FillCache(region image.Rectangle) (*image.RGBA, error) {
	f.mu.Lock()
	f.fills = append(f.fills, region)
	fill := f.fill
	f.mu.Unlock()
	if fill != nil {
		return fill(region)
	}
	return solid(region.Dx(), region.Dy(), fillColor), nil
}

func (f *fakeSource) CacheAllocationFailed(err error) {
	f.mu.Lock()
	f.allocErrs = append(f.allocErrs, err)
	f.mu.Unlock()
}

func (f *fakeSource) CacheWindow(viewport image.Rectangle) image.Rectangle {
	f.mu.Lock()
	window := f.window
	f.mu.Unlock()
	if window != nil {
		return window(viewport)
	}
	return viewport
}

func (f *fakeSource) DrawSample(dst *image.RGBA, region image.Rectangle) {
	f.mu.Lock()
	f.samples = append(f.samples, region)
	f.mu.Unlock()
	draw.Draw(dst, dst.Bounds(), image.NewUniform(sampleColor), image.Point{}, draw.Src)
}

func (f *fakeSource) DrawComplete(dst draw.Image) {
	f.mu.Lock()
	f.completes++
	f.mu.Unlock()
}

func (f *fakeSource) fillCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fills)
}

func (f *fakeSource) fillRegions() []image.Rectangle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]image.Rectangle(nil), f.fills...)
}

func (f *fakeSource) sampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func (f *fakeSource) completeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completes
}

func (f *fakeSource) allocErrors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.allocErrs...)
}

// newTestScene builds a 4000x3000 scene with a 400x300 viewport, the
// geometry every scenario here starts from.
func newTestScene(t *testing.T, src *fakeSource) *Scene {
	t.Helper()
	s := New(src, zap.NewNop())
	s.SetSceneSize(4000, 3000)
	s.Viewport().SetSize(400, 300)
	t.Cleanup(s.Stop)
	return s
}

func TestInitialViewportWindow(t *testing.T) {
	s := newTestScene(t, &fakeSource{})
	vp := s.Viewport()

	require.Equal(t, image.Rect(0, 0, 400, 300), vp.Window())
	require.Equal(t, image.Pt(400, 300), vp.PhysicalSize())
	require.Equal(t, image.Pt(400, 300), vp.Size())
	require.InDelta(t, 1.0, vp.Zoom(), 1e-9)
}

func TestSetOriginClampsToScene(t *testing.T) {
	s := newTestScene(t, &fakeSource{})
	vp := s.Viewport()

	vp.SetOrigin(4000, 4000)
	require.Equal(t, image.Rect(3600, 2700, 4000, 3000), vp.Window())
	require.Equal(t, image.Pt(3600, 2700), vp.Origin())

	vp.SetOrigin(-10, 50)
	require.Equal(t, image.Rect(0, 50, 400, 350), vp.Window())
}

func TestZoomAtRecomputesWindow(t *testing.T) {
	s := newTestScene(t, &fakeSource{})
	vp := s.Viewport()

	vp.ZoomAt(2, geom.PointF{X: 200, Y: 150})
	require.Equal(t, image.Rect(0, 0, 800, 600), vp.Window())
	require.InDelta(t, 2.0, vp.Zoom(), 1e-9)

	vp.ZoomAt(1, geom.PointF{X: 0, Y: 0})
	require.Equal(t, image.Rect(0, 0, 800, 600), vp.Window())
	require.InDelta(t, 2.0, vp.Zoom(), 1e-9)
}

func TestZoomBeforeSetSizeIsNoOp(t *testing.T) {
	s := New(&fakeSource{}, zap.NewNop())
	s.SetSceneSize(4000, 3000)

	s.Viewport().ZoomAt(2, geom.PointF{X: 200, Y: 150})
	require.Equal(t, image.Rectangle{}, s.Viewport().Window())
	require.InDelta(t, 1.0, s.Viewport().Zoom(), 1e-9)
}

func TestSetSizeResizesWindowKeepingOrigin(t *testing.T) {
	s := newTestScene(t, &fakeSource{})
	vp := s.Viewport()
	vp.SetOrigin(1000, 500)

	vp.SetSize(200, 100)
	require.Equal(t, image.Rect(1000, 500, 1200, 600), vp.Window())
	require.Equal(t, image.Pt(200, 100), vp.PhysicalSize())
}

func TestDrawBeforeInitializeDoesNothing(t *testing.T) {
	src := &fakeSource{}
	s := newTestScene(t, src)
	dst := image.NewRGBA(image.Rect(0, 0, 400, 300))

	s.Draw(dst)

	require.Equal(t, CacheUninitialized, s.CacheState())
	require.Zero(t, src.fillCount())
	require.Zero(t, src.sampleCount())
	// The viewport buffer is still painted onto the surface.
	require.Equal(t, 1, src.completeCount())
}

func TestDrawWithoutSurfaceAdvancesState(t *testing.T) {
	src := &fakeSource{}
	s := newTestScene(t, src)
	s.Initialize()

	s.Draw(nil)

	require.Equal(t, CacheStartUpdate, s.CacheState())
	require.Equal(t, 1, src.sampleCount())
	require.Zero(t, src.completeCount())
}

func TestDrawPaintsSampleFallback(t *testing.T) {
	src := &fakeSource{}
	s := newTestScene(t, src)
	s.Initialize()
	dst := image.NewRGBA(image.Rect(0, 0, 400, 300))

	s.Draw(dst)

	require.Equal(t, sampleColor, dst.RGBAAt(5, 5))
	require.Equal(t, 1, src.sampleCount())
	require.Equal(t, 1, src.completeCount())
	require.Equal(t, CacheStartUpdate, s.CacheState())
}

func TestStartUpdateClearsBuffer(t *testing.T) {
	src := &fakeSource{}
	s := newTestScene(t, src)
	s.Initialize()

	c := s.cache
	c.mu.Lock()
	c.state = CacheReady
	c.buf = solid(1, 1, fillColor)
	c.window = image.Rect(0, 0, 1, 1)
	c.mu.Unlock()

	// The 1x1 cache window cannot contain the viewport, so this re-arms.
	s.Draw(nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Equal(t, CacheStartUpdate, c.state)
	require.Nil(t, c.buf)
}

func TestCloseReleasesBuffers(t *testing.T) {
	src := &fakeSource{}
	s := newTestScene(t, src)
	s.Initialize()
	s.Start()
	s.Draw(nil)
	waitForState(t, s, CacheReady)

	s.Close()

	require.Equal(t, CacheInitialized, s.CacheState())
	require.Equal(t, image.Point{}, s.Viewport().PhysicalSize())
	c := s.cache
	c.mu.Lock()
	require.Nil(t, c.buf)
	c.mu.Unlock()

	// Drawing a closed scene must not panic.
	s.Draw(image.NewRGBA(image.Rect(0, 0, 400, 300)))
}
