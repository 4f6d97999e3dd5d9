package image_source

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/cshum/vipsgen/vips"
)

// ErrUnsupportedFormat reports a file extension with no loader.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// loadImage opens path with the loader matching its file extension.
func loadImage(path string, access vips.Access) (*vips.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".tif", ".tiff":
		opts := vips.DefaultTiffloadOptions()
		opts.Access = access
		return vips.NewTiffload(path, opts)
	case ".jpg", ".jpeg":
		opts := vips.DefaultJpegloadOptions()
		opts.Access = access
		return vips.NewJpegload(path, opts)
	case ".png":
		opts := vips.DefaultPngloadOptions()
		opts.Access = access
		return vips.NewPngload(path, opts)
	case ".webp":
		opts := vips.DefaultWebploadOptions()
		opts.Access = access
		return vips.NewWebpload(path, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// SupportedExt reports whether a file extension (with leading dot) has a
// loader.
func SupportedExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".tif", ".tiff", ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}

// Probe returns the pixel dimensions of the raster at path.
func Probe(path string) (width, height int, err error) {
	img, err := loadImage(path, vips.AccessSequential)
	if err != nil {
		return 0, 0, err
	}
	defer img.Close()
	return img.Width(), img.Height(), nil
}

// BuildPreview decodes a scaled-down copy of the raster at path with its
// longest side at most maxPx pixels.
func BuildPreview(path string, maxPx int) (*image.RGBA, error) {
	img, err := loadImage(path, vips.AccessSequential)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	longest := img.Width()
	if img.Height() > longest {
		longest = img.Height()
	}
	if longest > maxPx {
		scale := float64(maxPx) / float64(longest)
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = vips.KernelLanczos3
		if err := img.Resize(scale, resizeOpts); err != nil {
			return nil, fmt.Errorf("failed to resize: %w", err)
		}
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = previewQuality
	data, err := img.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode preview: %w", err)
	}
	return toRGBA(decoded), nil
}
