// Package image_list indexes the rasters available in a data directory.
// Image IDs are file names without their extension; the directory is the
// single source of truth and is never written to.
package image_list

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

type ImageInfo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Bytes    int64  `json:"bytes"`
}

// ProbeFunc returns the pixel dimensions of the raster at path.
type ProbeFunc func(path string) (width, height int, err error)

type Scanner struct {
	dataDir string
	probe   ProbeFunc
	logger  *zap.Logger
	images  []ImageInfo
}

func New(dataDir string, probe ProbeFunc, logger *zap.Logger) *Scanner {
	return &Scanner{
		dataDir: dataDir,
		probe:   probe,
		logger:  logger,
		images:  []ImageInfo{},
	}
}

// Scan rebuilds the index from the data directory. Files that cannot be
// probed are skipped with a warning.
func (s *Scanner) Scan() error {
	s.images = []ImageInfo{}

	extensions := map[string]bool{
		".tif":  true,
		".tiff": true,
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".webp": true,
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !extensions[ext] {
			continue
		}

		path := s.getFilePath(name)
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("Error getting file info", zap.String("path", path), zap.Error(err))
			continue
		}

		width, height, err := s.probe(path)
		if err != nil {
			s.logger.Warn("Failed to scan image", zap.String("path", path), zap.Error(err))
			continue
		}

		id := strings.TrimSuffix(name, ext)
		if seen[id] {
			s.logger.Warn("Duplicate image id, keeping the first file",
				zap.String("id", id),
				zap.String("path", path))
			continue
		}
		seen[id] = true

		s.images = append(s.images, ImageInfo{
			ID:       id,
			Filename: name,
			Width:    width,
			Height:   height,
			Bytes:    info.Size(),
		})
	}

	sort.Slice(s.images, func(i, j int) bool { return s.images[i].ID < s.images[j].ID })
	s.logger.Info("Scanned data directory", zap.Int("images", len(s.images)))
	return nil
}

func (s *Scanner) GetImages() []ImageInfo {
	return s.images
}

func (s *Scanner) GetImageByID(id string) *ImageInfo {
	for _, img := range s.images {
		if img.ID == id {
			return &img
		}
	}
	return nil
}

func (s *Scanner) GetImagePathByID(id string) string {
	imageInfo := s.GetImageByID(id)
	if imageInfo == nil {
		return ""
	}
	return s.getFilePath(imageInfo.Filename)
}

func (s *Scanner) getFilePath(filename string) string {
	return filepath.Join(s.dataDir, filename)
}
