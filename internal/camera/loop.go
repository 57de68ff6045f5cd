// Package camera drives live capture sessions: a frame source, a window and a
// per-frame handler reacting to key presses.
package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"pano-calib/internal/logger"

	"gocv.io/x/gocv"
)

const (
	KeyEsc   = 27
	KeySpace = 32
)

// Source yields frames; *gocv.VideoCapture satisfies it.
type Source interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Display shows frames and reports key presses; *gocv.Window satisfies it.
type Display interface {
	IMShow(img gocv.Mat) error
	WaitKey(delay int) int
	Close() error
}

// Handler processes one frame in place. key is the key pressed while the
// previous frame was shown, or -1.
type Handler interface {
	HandleFrame(frame *gocv.Mat, key int) error
}

// Open opens a capture device by index ("0") or a video file / stream URL.
func Open(device string) (*gocv.VideoCapture, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("opening capture device %s: %w", device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("capture device %s is not available", device)
	}
	return capture, nil
}

// Run reads frames until the context is cancelled, the source runs dry or
// q/ESC is pressed. Handler and display errors stop the loop.
func Run(ctx context.Context, src Source, display Display, handler Handler, log logger.Logger) error {
	frame := gocv.NewMat()
	defer frame.Close()

	key := -1
	frames := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("CameraLoop", "capture cancelled", map[string]interface{}{"frames": frames})
			return ctx.Err()
		default:
		}

		if !src.Read(&frame) || frame.Empty() {
			log.Info("CameraLoop", "capture ended", map[string]interface{}{"frames": frames})
			return nil
		}
		frames++

		if err := handler.HandleFrame(&frame, key); err != nil {
			return err
		}

		if err := display.IMShow(frame); err != nil {
			return fmt.Errorf("showing frame %d: %w", frames, err)
		}
		key = display.WaitKey(1)
		if key == 'q' || key == KeyEsc {
			log.Info("CameraLoop", "capture stopped by user", map[string]interface{}{"frames": frames})
			return nil
		}
	}
}

// Overlay writes status lines in the top left corner of frame.
func Overlay(frame *gocv.Mat, lines ...string) {
	for i, line := range lines {
		origin := image.Pt(10, 30+i*28)
		gocv.PutText(frame, line, origin, gocv.FontHersheyPlain, 1.6, color.RGBA{0, 0, 0, 0}, 4)
		gocv.PutText(frame, line, origin, gocv.FontHersheyPlain, 1.6, color.RGBA{255, 255, 0, 0}, 2)
	}
}
