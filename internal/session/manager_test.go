package session

import (
	"fmt"
	"image"
	"image/draw"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gigascene/internal/scene"
)

// stubSource serves fills and samples instantly.
type stubSource struct {
	fills     atomic.Int64
	completes atomic.Int64
}

func (s *stubSource) FillCache(region image.Rectangle) (*image.RGBA, error) {
	s.fills.Add(1)
	return image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy())), nil
}

func (s *stubSource) CacheAllocationFailed(error) {}

func (s *stubSource) CacheWindow(viewport image.Rectangle) image.Rectangle {
	return viewport
}

func (s *stubSource) DrawSample(dst *image.RGBA, region image.Rectangle) {}

func (s *stubSource) DrawComplete(dst draw.Image) {
	s.completes.Add(1)
}

type testEnv struct {
	opens  atomic.Int64
	closes atomic.Int64
}

func (e *testEnv) opener(imageID string, viewW, viewH int) (*Opened, error) {
	if imageID == "missing" {
		return nil, fmt.Errorf("unknown image %q", imageID)
	}
	e.opens.Add(1)

	src := &stubSource{}
	sc := scene.New(src, zap.NewNop())
	sc.SetSceneSize(4000, 3000)
	sc.Viewport().SetSize(viewW, viewH)
	sc.Initialize()
	sc.Start()

	return &Opened{
		Scene:  sc,
		Frames: src.completes.Load,
		Close: func() {
			e.closes.Add(1)
			sc.Close()
		},
	}, nil
}

func newTestManager(t *testing.T, maxSessions int) (*Manager, *testEnv) {
	t.Helper()
	env := &testEnv{}
	m := NewManager(env.opener, maxSessions, zap.NewNop())
	t.Cleanup(m.CloseAll)
	return m, env
}

func TestCreateAndGet(t *testing.T) {
	m, env := newTestManager(t, 4)

	sess, err := m.Create("alpha", 400, 300)
	require.NoError(t, err)
	_, err = uuid.Parse(sess.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, env.opens.Load())

	require.Same(t, sess, m.Get(sess.ID))
	require.Nil(t, m.Get("nope"))
	require.Equal(t, 1, m.Len())

	info := sess.Info()
	require.Equal(t, "alpha", info.ImageID)
	require.Equal(t, WindowInfo{X: 0, Y: 0, Width: 400, Height: 300}, info.Window)
	require.Equal(t, 1.0, info.Zoom)
	require.Equal(t, 400, info.ViewWidth)
	require.Equal(t, 300, info.ViewHeight)
	require.Equal(t, "initialized", info.CacheState)
}

func TestCreateUnknownImage(t *testing.T) {
	m, env := newTestManager(t, 4)

	_, err := m.Create("missing", 400, 300)
	require.ErrorContains(t, err, "failed to open scene")
	require.Equal(t, 0, m.Len())
	require.EqualValues(t, 0, env.opens.Load())
}

func TestSessionLimit(t *testing.T) {
	m, _ := newTestManager(t, 2)

	first, err := m.Create("alpha", 100, 75)
	require.NoError(t, err)
	_, err = m.Create("beta", 100, 75)
	require.NoError(t, err)

	_, err = m.Create("gamma", 100, 75)
	require.ErrorIs(t, err, ErrLimit)

	require.True(t, m.Close(first.ID))
	_, err = m.Create("gamma", 100, 75)
	require.NoError(t, err)
}

func TestCloseReleasesScene(t *testing.T) {
	m, env := newTestManager(t, 4)

	sess, err := m.Create("alpha", 100, 75)
	require.NoError(t, err)

	require.True(t, m.Close(sess.ID))
	require.EqualValues(t, 1, env.closes.Load())
	require.False(t, m.Close(sess.ID))
	require.EqualValues(t, 1, env.closes.Load())

	_, err = sess.Render()
	require.ErrorContains(t, err, "closed")
}

func TestRenderProducesFrames(t *testing.T) {
	m, _ := newTestManager(t, 4)

	sess, err := m.Create("alpha", 320, 240)
	require.NoError(t, err)

	frame, err := sess.Render()
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 320, 240), frame.Bounds())

	require.Eventually(t, func() bool {
		return sess.Info().CacheState == "ready"
	}, 2*time.Second, 5*time.Millisecond)

	_, err = sess.Render()
	require.NoError(t, err)
	require.GreaterOrEqual(t, sess.Info().Frames, int64(2))
}

func TestViewControlsForward(t *testing.T) {
	m, _ := newTestManager(t, 4)

	sess, err := m.Create("alpha", 400, 300)
	require.NoError(t, err)

	sess.SetOrigin(100, 80)
	info := sess.Info()
	require.Equal(t, WindowInfo{X: 100, Y: 80, Width: 400, Height: 300}, info.Window)

	sess.ZoomAt(2, 0, 0)
	require.InDelta(t, 2.0, sess.Info().Zoom, 1e-9)

	sess.Resize(200, 150)
	info = sess.Info()
	require.Equal(t, 200, info.ViewWidth)
	require.Equal(t, 150, info.ViewHeight)
	require.Equal(t, 200, info.Window.Width)

	sess.SetSuspend(true)
	require.Equal(t, "suspended", sess.Info().CacheState)
	sess.SetSuspend(false)
	require.Equal(t, "initialized", sess.Info().CacheState)
}

func TestCloseAll(t *testing.T) {
	m, env := newTestManager(t, 8)

	for i := 0; i < 3; i++ {
		_, err := m.Create(fmt.Sprintf("img-%d", i), 64, 48)
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.Len())

	m.CloseAll()
	require.Equal(t, 0, m.Len())
	require.EqualValues(t, 3, env.closes.Load())
}
