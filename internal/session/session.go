// Package session manages interactive viewing sessions. Each session owns
// one scene over one catalog image; the manager bounds how many scenes,
// and therefore cache buffers and workers, are alive at once.
package session

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gigascene/internal/geom"
	"gigascene/internal/scene"
)

// Opened bundles what a session needs from an opened scene: the scene
// itself, a frame counter, and a release hook.
type Opened struct {
	Scene  *scene.Scene
	Frames func() int64
	Close  func()
}

// OpenSceneFunc opens a ready-to-draw scene over the given catalog image
// with a viewW x viewH viewport surface.
type OpenSceneFunc func(imageID string, viewW, viewH int) (*Opened, error)

// Session is one interactive view over one image.
type Session struct {
	ID        string
	ImageID   string
	CreatedAt time.Time

	mu     sync.Mutex
	closed bool

	scene   *scene.Scene
	frames  func() int64
	closeFn func()
}

type WindowInfo struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Info struct {
	ID         string     `json:"id"`
	ImageID    string     `json:"image_id"`
	CreatedAt  time.Time  `json:"created_at"`
	Window     WindowInfo `json:"window"`
	Zoom       float64    `json:"zoom"`
	ViewWidth  int        `json:"view_width"`
	ViewHeight int        `json:"view_height"`
	CacheState string     `json:"cache_state"`
	Frames     int64      `json:"frames"`
}

// SetOrigin pans the view to put (x, y) at the top-left corner, clamped to
// the scene.
func (s *Session) SetOrigin(x, y int) {
	s.scene.Viewport().SetOrigin(x, y)
}

// ZoomAt scales the view by factor around the focus pixel (fx, fy).
func (s *Session) ZoomAt(factor, fx, fy float64) {
	s.scene.Viewport().ZoomAt(factor, geom.PointF{X: fx, Y: fy})
}

// Resize replaces the viewport surface with a w x h one.
func (s *Session) Resize(w, h int) {
	s.scene.Viewport().SetSize(w, h)
}

// SetSuspend pauses or resumes background cache refills.
func (s *Session) SetSuspend(suspend bool) {
	s.scene.SetSuspend(suspend)
}

// Invalidate discards the cached pixels so the next frame triggers a fresh
// fill.
func (s *Session) Invalidate() {
	s.scene.Invalidate()
}

// Render draws one frame into a freshly allocated image. Frames from a
// session that is still filling its cache come from the preview fallback.
func (s *Session) Render() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session %s is closed", s.ID)
	}
	size := s.scene.Viewport().PhysicalSize()
	if size.X == 0 || size.Y == 0 {
		return nil, fmt.Errorf("session %s has no viewport surface", s.ID)
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	s.scene.Draw(dst)
	return dst, nil
}

// Info returns a snapshot of the session's view state.
func (s *Session) Info() Info {
	vp := s.scene.Viewport()
	win := vp.Window()
	size := vp.PhysicalSize()

	var frames int64
	if s.frames != nil {
		frames = s.frames()
	}

	return Info{
		ID:        s.ID,
		ImageID:   s.ImageID,
		CreatedAt: s.CreatedAt,
		Window: WindowInfo{
			X:      win.Min.X,
			Y:      win.Min.Y,
			Width:  win.Dx(),
			Height: win.Dy(),
		},
		Zoom:       vp.Zoom(),
		ViewWidth:  size.X,
		ViewHeight: size.Y,
		CacheState: s.scene.CacheState().String(),
		Frames:     frames,
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.closeFn != nil {
		s.closeFn()
	}
}
