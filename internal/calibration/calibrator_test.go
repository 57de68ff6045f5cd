package calibration

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"pano-calib/internal/geometry"
	"pano-calib/internal/logger"
	"pano-calib/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const (
	squarePx = 40
	marginPx = 80
)

// chessboard renders an 11x7 square board, which has 10x6 inner corners.
func chessboard(t *testing.T) gocv.Mat {
	t.Helper()

	cols, rows := 11, 7
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0),
		rows*squarePx+2*marginPx, cols*squarePx+2*marginPx, gocv.MatTypeCV8UC3)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if (r+c)%2 != 0 {
				continue
			}
			x := marginPx + c*squarePx
			y := marginPx + r*squarePx
			gocv.Rectangle(&img, image.Rect(x, y, x+squarePx, y+squarePx), color.RGBA{0, 0, 0, 0}, -1)
		}
	}
	return img
}

func warped(t *testing.T, src gocv.Mat, values []float64) gocv.Mat {
	t.Helper()

	h, err := geometry.NewHomography(values)
	require.NoError(t, err)
	m := h.ToMat()
	defer m.Close()

	dst := gocv.NewMat()
	gocv.WarpPerspectiveWithParams(src, &dst, m, image.Pt(src.Cols(), src.Rows()),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{255, 255, 255, 0})
	return dst
}

func TestBoardCornerPositions(t *testing.T) {
	c := NewCalibrator(Options{BoardSize: image.Pt(3, 2), SquareSize: 25}, logger.Nop())

	got := c.BoardCornerPositions()
	require.Len(t, got, 6)
	assert.Equal(t, gocv.Point3f{X: 0, Y: 0}, got[0])
	assert.Equal(t, gocv.Point3f{X: 50, Y: 0}, got[2])
	assert.Equal(t, gocv.Point3f{X: 25, Y: 25}, got[4])
	for _, p := range got {
		assert.Zero(t, p.Z)
	}
}

func TestNewCalibratorDefaults(t *testing.T) {
	c := NewCalibrator(Options{}, logger.Nop())
	assert.Len(t, c.BoardCornerPositions(), 60)
	assert.Equal(t, 20, c.maxSnapshots)
}

func TestSetSizesValidation(t *testing.T) {
	c := NewCalibrator(DefaultOptions(), logger.Nop())

	assert.Error(t, c.SetSizes(image.Pt(1, 6), image.Pt(640, 480), 50))
	assert.Error(t, c.SetSizes(image.Pt(10, 6), image.Pt(640, 480), 0))
	require.NoError(t, c.SetSizes(image.Pt(10, 6), image.Pt(640, 480), 30))
	assert.Equal(t, image.Pt(640, 480), c.ImageSize())
}

func TestCalibrateWithoutSnapshots(t *testing.T) {
	c := NewCalibrator(DefaultOptions(), logger.Nop())

	_, err := c.Calibrate()
	assert.True(t, errors.Is(err, ErrNoSnapshots))
}

func TestIdentifyChessboard(t *testing.T) {
	board := chessboard(t)
	defer board.Close()

	c := NewCalibrator(DefaultOptions(), logger.Nop())

	preview := board.Clone()
	defer preview.Close()
	n, err := c.IdentifyChessboard(&preview, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(board, preview, &diff)
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)
	assert.Positive(t, gocv.CountNonZero(gray), "detected corners should be drawn")

	frame := board.Clone()
	defer frame.Close()
	n, err = c.IdentifyChessboard(&frame, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, image.Pt(board.Cols(), board.Rows()), c.ImageSize())

	c.Reset()
	assert.Zero(t, c.Snapshots())
}

func TestIdentifyChessboardNoBoard(t *testing.T) {
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer blank.Close()

	c := NewCalibrator(DefaultOptions(), logger.Nop())
	n, err := c.IdentifyChessboard(&blank, true)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIdentifyChessboardEmptyFrame(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	c := NewCalibrator(DefaultOptions(), logger.Nop())
	_, err := c.IdentifyChessboard(&empty, true)
	assert.Error(t, err)
}

func TestSnapshotCapReplacesOldest(t *testing.T) {
	board := chessboard(t)
	defer board.Close()

	c := NewCalibrator(Options{MaxSnapshots: 2}, logger.Nop())
	for i := 0; i < 3; i++ {
		frame := board.Clone()
		n, err := c.IdentifyChessboard(&frame, true)
		frame.Close()
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 2)
	}
	assert.Equal(t, 2, c.Snapshots())
}

func TestSnapshotSizeMismatch(t *testing.T) {
	board := chessboard(t)
	defer board.Close()

	c := NewCalibrator(DefaultOptions(), logger.Nop())
	require.NoError(t, c.SetSizes(image.Pt(10, 6), image.Pt(640, 480), 50))

	frame := board.Clone()
	defer frame.Close()
	_, err := c.IdentifyChessboard(&frame, true)
	assert.True(t, errors.Is(err, ErrSizeMismatch))
	assert.Zero(t, c.Snapshots())
}

func TestCalibrateAndUndistort(t *testing.T) {
	board := chessboard(t)
	defer board.Close()

	views := [][]float64{
		{1, 0, 0, 0, 1, 0, 0, 0, 1},
		{0.95, 0.05, 20, -0.03, 0.97, 15, 0.0002, 0.0001, 1},
		{1.02, -0.04, 5, 0.04, 1.0, 10, -0.0002, 0.0001, 1},
		{0.97, 0.02, 12, 0.01, 0.95, 25, 0.0001, -0.0002, 1},
	}

	c := NewCalibrator(DefaultOptions(), logger.Nop())
	for _, v := range views {
		frame := warped(t, board, v)
		_, err := c.IdentifyChessboard(&frame, true)
		frame.Close()
		require.NoError(t, err)
	}
	require.Equal(t, len(views), c.Snapshots())

	info, err := c.Calibrate()
	require.NoError(t, err)
	require.NoError(t, info.Validate())
	assert.Equal(t, len(views), info.Snapshots)
	assert.Equal(t, board.Cols(), info.ImageWidth)
	assert.Equal(t, 10, info.BoardWidth)
	assert.Positive(t, info.Matrix[0])
	assert.Positive(t, info.Matrix[4])
	assert.GreaterOrEqual(t, info.RMS, 0.0)

	out, err := Undistort(board, info)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, board.Rows(), out.Rows())
	assert.Equal(t, board.Cols(), out.Cols())
}

func TestUndistortRejectsInvalidInfo(t *testing.T) {
	frame := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer frame.Close()

	_, err := Undistort(frame, &models.CameraInfo{})
	assert.Error(t, err)
}
