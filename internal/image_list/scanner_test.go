package image_list

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func fixedProbe(width, height int) ProbeFunc {
	return func(string) (int, int, error) {
		return width, height, nil
	}
}

func TestScanIndexesSupportedRasters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "beta.jpeg", 7)
	writeFile(t, dir, "alpha.tif", 3)
	writeFile(t, dir, "notes.txt", 5)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "thumbs"), 0o755))

	sizes := map[string][2]int{
		"alpha.tif": {4000, 3000},
		"beta.jpeg": {800, 600},
	}
	probe := func(path string) (int, int, error) {
		size, ok := sizes[filepath.Base(path)]
		if !ok {
			return 0, 0, fmt.Errorf("unexpected probe of %s", path)
		}
		return size[0], size[1], nil
	}

	s := New(dir, probe, zap.NewNop())
	require.NoError(t, s.Scan())

	want := []ImageInfo{
		{ID: "alpha", Filename: "alpha.tif", Width: 4000, Height: 3000, Bytes: 3},
		{ID: "beta", Filename: "beta.jpeg", Width: 800, Height: 600, Bytes: 7},
	}
	if diff := cmp.Diff(want, s.GetImages()); diff != "" {
		t.Errorf("GetImages() mismatch (-want +got):\n%s", diff)
	}
}

func TestScanSkipsFailedProbes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.png", 1)
	writeFile(t, dir, "corrupt.png", 1)

	probe := func(path string) (int, int, error) {
		if filepath.Base(path) == "corrupt.png" {
			return 0, 0, fmt.Errorf("failed to load image")
		}
		return 100, 50, nil
	}

	s := New(dir, probe, zap.NewNop())
	require.NoError(t, s.Scan())

	images := s.GetImages()
	require.Len(t, images, 1)
	require.Equal(t, "good", images[0].ID)
}

func TestScanKeepsFirstOfDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "map.tif", 1)
	writeFile(t, dir, "map.webp", 1)

	s := New(dir, fixedProbe(10, 10), zap.NewNop())
	require.NoError(t, s.Scan())

	images := s.GetImages()
	require.Len(t, images, 1)
	require.Equal(t, "map.tif", images[0].Filename)
}

func TestScanMissingDirectory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"), fixedProbe(1, 1), zap.NewNop())
	require.Error(t, s.Scan())
}

func TestGetImageByID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "huge.tiff", 2)

	s := New(dir, fixedProbe(90000, 60000), zap.NewNop())
	require.NoError(t, s.Scan())

	img := s.GetImageByID("huge")
	require.NotNil(t, img)
	require.Equal(t, 90000, img.Width)
	require.Equal(t, 60000, img.Height)
	require.Nil(t, s.GetImageByID("missing"))

	require.Equal(t, filepath.Join(dir, "huge.tiff"), s.GetImagePathByID("huge"))
	require.Equal(t, "", s.GetImagePathByID("missing"))
}
