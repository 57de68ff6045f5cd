// Package imageio reads and writes images as OpenCV Mats.
package imageio

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"pano-calib/internal/debug/timing"
	"pano-calib/internal/logger"
	"pano-calib/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// Image is a decoded image owned by the caller; Close releases the Mat.
type Image struct {
	Mat      *safe.Mat
	Width    int
	Height   int
	Channels int
	Format   string
	Path     string
}

func (i *Image) Close() {
	if i != nil && i.Mat != nil {
		i.Mat.Close()
	}
}

type Loader struct {
	memTracker safe.MemoryTracker
	logger     logger.Logger
	timing     *timing.Tracker
}

func NewLoader(memTracker safe.MemoryTracker, log logger.Logger, tracker *timing.Tracker) *Loader {
	if tracker == nil {
		tracker = timing.NewTracker()
	}
	return &Loader{memTracker: memTracker, logger: log, timing: tracker}
}

func (l *Loader) LoadFromPath(ctx context.Context, path string) (*Image, error) {
	ctx = l.timing.StartTiming(ctx, "load_from_path")
	defer l.timing.EndTiming(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}

	l.logger.Debug("ImageLoader", "image data read", map[string]interface{}{
		"path":       path,
		"size_bytes": len(data),
	})

	img, err := l.LoadFromBytes(ctx, data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img.Path = path
	return img, nil
}

// LoadFromBytes decodes data as a 3 channel BGR image. extension is only
// used to name the format.
func (l *Loader) LoadFromBytes(ctx context.Context, data []byte, extension string) (*Image, error) {
	ctx = l.timing.StartTiming(ctx, "load_from_bytes")
	defer l.timing.EndTiming(ctx)

	if len(data) == 0 {
		return nil, fmt.Errorf("no image data: %w", safe.ErrEmptyImage)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image with OpenCV: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to decode image: %w", safe.ErrEmptyImage)
	}

	safeMat, err := safe.Adopt(mat, l.memTracker, "loaded_image")
	if err != nil {
		return nil, fmt.Errorf("failed to create safe Mat: %w", err)
	}

	img := &Image{
		Mat:      safeMat,
		Width:    safeMat.Cols(),
		Height:   safeMat.Rows(),
		Channels: safeMat.Channels(),
		Format:   determineActualFormat(strings.ToLower(extension), data),
	}

	l.logger.Info("ImageLoader", "image loaded successfully", map[string]interface{}{
		"width":    img.Width,
		"height":   img.Height,
		"channels": img.Channels,
		"format":   img.Format,
	})

	return img, nil
}

func determineActualFormat(extension string, data []byte) string {
	switch extension {
	case ".tiff", ".tif":
		return "tiff"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	case ".bmp":
		return "bmp"
	case ".gif":
		return "gif"
	case ".webp":
		return "webp"
	}

	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return format
	}
	return "unknown"
}
