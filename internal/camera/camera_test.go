package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"pano-calib/internal/calibration"
	"pano-calib/internal/logger"
	"pano-calib/internal/markers"
	"pano-calib/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeSource struct {
	frame  gocv.Mat
	remain int
}

func (s *fakeSource) Read(m *gocv.Mat) bool {
	if s.remain == 0 {
		return false
	}
	s.remain--
	s.frame.CopyTo(m)
	return true
}

func (s *fakeSource) Close() error { return nil }

type fakeDisplay struct {
	keys  []int
	shown int
	err   error
}

func (d *fakeDisplay) IMShow(gocv.Mat) error {
	d.shown++
	return d.err
}

func (d *fakeDisplay) WaitKey(int) int {
	if len(d.keys) == 0 {
		return -1
	}
	k := d.keys[0]
	d.keys = d.keys[1:]
	return k
}

func (d *fakeDisplay) Close() error { return nil }

type countingHandler struct {
	keys []int
	err  error
}

func (h *countingHandler) HandleFrame(_ *gocv.Mat, key int) error {
	h.keys = append(h.keys, key)
	return h.err
}

func blankFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 120, 160, gocv.MatTypeCV8UC3)
}

func TestRunStopsWhenSourceEnds(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()

	src := &fakeSource{frame: frame, remain: 3}
	display := &fakeDisplay{}
	h := &countingHandler{}

	require.NoError(t, Run(context.Background(), src, display, h, logger.Nop()))
	assert.Equal(t, 3, display.shown)
	assert.Equal(t, []int{-1, -1, -1}, h.keys)
}

func TestRunPassesKeysAndQuits(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()

	src := &fakeSource{frame: frame, remain: 10}
	display := &fakeDisplay{keys: []int{KeySpace, 'c', 'q'}}
	h := &countingHandler{}

	require.NoError(t, Run(context.Background(), src, display, h, logger.Nop()))
	assert.Equal(t, []int{-1, KeySpace, 'c'}, h.keys)
}

func TestRunHonoursCancellation(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, &fakeSource{frame: frame, remain: 10}, &fakeDisplay{}, &countingHandler{}, logger.Nop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunReturnsHandlerError(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()

	boom := errors.New("boom")
	err := Run(context.Background(), &fakeSource{frame: frame, remain: 10}, &fakeDisplay{}, &countingHandler{err: boom}, logger.Nop())
	assert.ErrorIs(t, err, boom)
}

func TestRunReturnsDisplayError(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()

	closed := errors.New("window closed")
	display := &fakeDisplay{err: closed}
	err := Run(context.Background(), &fakeSource{frame: frame, remain: 10}, display, &countingHandler{}, logger.Nop())
	assert.ErrorIs(t, err, closed)
	assert.Equal(t, 1, display.shown)
}

// Display must stay satisfiable by the highgui window.
var _ Display = (*gocv.Window)(nil)

// board renders an 11x7 square chessboard (10x6 inner corners).
func board() gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 440, 600, gocv.MatTypeCV8UC3)
	for r := 0; r < 7; r++ {
		for c := 0; c < 11; c++ {
			if (r+c)%2 == 0 {
				x, y := 80+c*40, 80+r*40
				gocv.Rectangle(&img, image.Rect(x, y, x+40, y+40), color.RGBA{0, 0, 0, 0}, -1)
			}
		}
	}
	return img
}

func TestCalibrationSession(t *testing.T) {
	b := board()
	defer b.Close()

	opts := calibration.DefaultOptions()
	cal := calibration.NewCalibrator(opts, logger.Nop())
	out := filepath.Join(t.TempDir(), "camera.yaml")
	s := NewCalibrationSession(cal, opts, out, logger.Nop())

	frame := b.Clone()
	defer frame.Close()

	// calibrating with nothing captured only warns
	require.NoError(t, s.HandleFrame(&frame, 'c'))
	assert.Nil(t, s.Result)
	assert.Equal(t, image.Pt(600, 440), cal.ImageSize())

	b.CopyTo(&frame)
	require.NoError(t, s.HandleFrame(&frame, KeySpace))
	assert.Equal(t, 1, cal.Snapshots())

	b.CopyTo(&frame)
	require.NoError(t, s.HandleFrame(&frame, 'r'))
	assert.Zero(t, cal.Snapshots())
}

func TestMarkerSessionWithoutMarkers(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()

	info := &models.CameraInfo{
		Matrix:     []float64{500, 0, 80, 0, 500, 60, 0, 0, 1},
		Distortion: []float64{0, 0, 0, 0, 0},
	}
	d, err := markers.NewDetector(markers.DefaultOptions(), logger.Nop())
	require.NoError(t, err)
	defer d.Close()

	s := NewMarkerSession(d, info, logger.Nop())
	require.NoError(t, s.HandleFrame(&frame, -1))
	assert.Empty(t, s.Last)
}
