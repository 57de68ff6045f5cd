package imageio

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pano-calib/internal/debug/timing"
	"pano-calib/internal/logger"
	"pano-calib/internal/opencv/conversion"
	"pano-calib/internal/opencv/safe"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// DefaultOutput is where the panorama is written when no path is given.
const DefaultOutput = "resulting_pano_image.jpg"

const jpegQuality = 95

var fileExts = map[string]gocv.FileExt{
	"jpeg": gocv.JPEGFileExt,
	"png":  gocv.PNGFileExt,
}

type Saver struct {
	logger logger.Logger
	timing *timing.Tracker
}

func NewSaver(log logger.Logger, tracker *timing.Tracker) *Saver {
	if tracker == nil {
		tracker = timing.NewTracker()
	}
	return &Saver{logger: log, timing: tracker}
}

// SaveToPath writes img to path, choosing the encoder from the extension.
// A path without extension gets ".jpg"; an empty path means DefaultOutput.
func (s *Saver) SaveToPath(ctx context.Context, path string, img gocv.Mat) (string, error) {
	ctx = s.timing.StartTiming(ctx, "save_to_path")
	defer s.timing.EndTiming(ctx)

	if err := safe.ValidateMat(img, "save image"); err != nil {
		return "", err
	}

	if path == "" {
		path = DefaultOutput
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		path += ".jpg"
		ext = ".jpg"
	}
	if !supportedExtension(ext) {
		return "", fmt.Errorf("unsupported output format %q", ext)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating output directory: %w", err)
		}
	}

	var ok bool
	if ext == ".jpg" || ext == ".jpeg" {
		ok = gocv.IMWriteWithParams(path, img, []int{int(gocv.IMWriteJpegQuality), jpegQuality})
	} else {
		ok = gocv.IMWrite(path, img)
	}
	if !ok {
		err := fmt.Errorf("failed to write image to %s", path)
		s.logger.Error("ImageSaver", err, map[string]interface{}{
			"format": ext,
		})
		return "", err
	}

	s.logger.Info("ImageSaver", "image saved", map[string]interface{}{
		"path":   path,
		"width":  img.Cols(),
		"height": img.Rows(),
	})
	return path, nil
}

// SaveToWriter encodes img as format ("jpeg" or "png") into w.
func (s *Saver) SaveToWriter(w io.Writer, img gocv.Mat, format string) error {
	if err := safe.ValidateMat(img, "encode image"); err != nil {
		return err
	}

	if format == "" {
		format = "png"
	}
	ext, ok := fileExts[format]
	if !ok {
		s.logger.Warning("ImageSaver", "format not supported, using PNG", map[string]interface{}{
			"requested_format": strings.ToUpper(format),
		})
		ext = gocv.PNGFileExt
	}

	buf, err := gocv.IMEncode(ext, img)
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	if _, err := w.Write(buf.GetBytes()); err != nil {
		return fmt.Errorf("failed to write encoded image: %w", err)
	}
	return nil
}

func supportedExtension(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

// Preview converts img to a Go image scaled down to fit maxWidth x maxHeight.
// Images already inside the box are returned at their own size.
func Preview(img gocv.Mat, maxWidth, maxHeight int) (image.Image, error) {
	goImg, err := conversion.MatToImage(img)
	if err != nil {
		return nil, err
	}
	b := goImg.Bounds()
	if maxWidth <= 0 || maxHeight <= 0 || (b.Dx() <= maxWidth && b.Dy() <= maxHeight) {
		return goImg, nil
	}
	return imaging.Fit(goImg, maxWidth, maxHeight, imaging.Lanczos), nil
}
