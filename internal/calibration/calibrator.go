// Package calibration estimates camera intrinsics from chessboard snapshots.
package calibration

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"pano-calib/internal/logger"
	"pano-calib/internal/models"
	"pano-calib/internal/opencv/conversion"
	"pano-calib/internal/opencv/safe"

	"gocv.io/x/gocv"
)

var (
	// ErrNoSnapshots is returned by Calibrate before any board was captured.
	ErrNoSnapshots = errors.New("no chessboard snapshots captured")
	// ErrSizeMismatch is returned when a frame differs in size from the first one.
	ErrSizeMismatch = errors.New("frame size differs from calibration image size")
)

const (
	subPixWindow   = 11
	subPixMaxIters = 30
	subPixEpsilon  = 0.1

	chessboardFlags = gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage | gocv.CalibCBFastCheck
)

type Options struct {
	// BoardSize counts inner corners per row (X) and column (Y).
	BoardSize    image.Point
	SquareSize   float64
	MaxSnapshots int
}

func DefaultOptions() Options {
	return Options{
		BoardSize:    image.Pt(10, 6),
		SquareSize:   50,
		MaxSnapshots: 20,
	}
}

// Calibrator accumulates chessboard corner sets and runs calibrateCamera.
// It is safe for use from a capture goroutine and a UI goroutine.
type Calibrator struct {
	mu           sync.Mutex
	boardSize    image.Point
	imageSize    image.Point
	squareSize   float64
	maxSnapshots int
	imagePoints  [][]gocv.Point2f
	logger       logger.Logger
}

func NewCalibrator(opts Options, log logger.Logger) *Calibrator {
	defaults := DefaultOptions()
	if opts.BoardSize.X < 2 || opts.BoardSize.Y < 2 {
		opts.BoardSize = defaults.BoardSize
	}
	if opts.SquareSize <= 0 {
		opts.SquareSize = defaults.SquareSize
	}
	if opts.MaxSnapshots <= 0 {
		opts.MaxSnapshots = defaults.MaxSnapshots
	}

	return &Calibrator{
		boardSize:    opts.BoardSize,
		squareSize:   opts.SquareSize,
		maxSnapshots: opts.MaxSnapshots,
		logger:       log,
	}
}

// SetSizes configures the board, frame size and square size. Captured
// snapshots are dropped when the image size changes.
func (c *Calibrator) SetSizes(board, imageSize image.Point, square float64) error {
	if board.X < 2 || board.Y < 2 {
		return fmt.Errorf("board needs at least 2x2 inner corners, got %dx%d", board.X, board.Y)
	}
	if square <= 0 {
		return fmt.Errorf("square size must be positive, got %g", square)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if imageSize != c.imageSize || board != c.boardSize {
		c.imagePoints = nil
	}
	c.boardSize = board
	c.imageSize = imageSize
	c.squareSize = square
	return nil
}

func (c *Calibrator) ImageSize() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imageSize
}

// IdentifyChessboard looks for the board in frame, refines the corners, keeps
// them when takeSnapshot is set and draws the detection onto frame. It
// returns the number of stored snapshots. Once MaxSnapshots is reached the
// oldest snapshot is replaced.
func (c *Calibrator) IdentifyChessboard(frame *gocv.Mat, takeSnapshot bool) (int, error) {
	if err := safe.ValidateMat(*frame, "identify chessboard"); err != nil {
		return c.Snapshots(), err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	frameSize := image.Pt(frame.Cols(), frame.Rows())
	if c.imageSize == (image.Point{}) {
		c.imageSize = frameSize
	}

	gray, err := conversion.ConvertToGrayscale(*frame)
	if err != nil {
		return len(c.imagePoints), err
	}
	defer gray.Close()

	corners := gocv.NewMat()
	defer corners.Close()

	found := gocv.FindChessboardCorners(gray, c.boardSize, &corners, chessboardFlags)
	if found {
		criteria := gocv.NewTermCriteria(gocv.EPS|gocv.Count, subPixMaxIters, subPixEpsilon)
		gocv.CornerSubPix(gray, &corners, image.Pt(subPixWindow, subPixWindow), image.Pt(-1, -1), criteria)

		if takeSnapshot {
			if frameSize != c.imageSize {
				return len(c.imagePoints), fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, frameSize, c.imageSize)
			}
			c.store(corners)
		}
	}

	if !corners.Empty() {
		gocv.DrawChessboardCorners(frame, c.boardSize, corners, found)
	}

	return len(c.imagePoints), nil
}

func (c *Calibrator) store(corners gocv.Mat) {
	vec := gocv.NewPoint2fVectorFromMat(corners)
	points := vec.ToPoints()
	vec.Close()

	if len(c.imagePoints) >= c.maxSnapshots {
		c.imagePoints = append(c.imagePoints[1:], points)
	} else {
		c.imagePoints = append(c.imagePoints, points)
	}

	c.logger.Debug("Calibrator", "snapshot stored", map[string]interface{}{
		"snapshots": len(c.imagePoints),
		"corners":   len(points),
	})
}

func (c *Calibrator) Snapshots() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.imagePoints)
}

func (c *Calibrator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imagePoints = nil
}

// BoardCornerPositions lays out the inner corners on the Z=0 plane, row by row.
func (c *Calibrator) BoardCornerPositions() []gocv.Point3f {
	c.mu.Lock()
	defer c.mu.Unlock()
	return boardCornerPositions(c.boardSize, c.squareSize)
}

func boardCornerPositions(board image.Point, square float64) []gocv.Point3f {
	obj := make([]gocv.Point3f, 0, board.X*board.Y)
	for i := 0; i < board.Y; i++ {
		for j := 0; j < board.X; j++ {
			obj = append(obj, gocv.Point3f{
				X: float32(float64(j) * square),
				Y: float32(float64(i) * square),
			})
		}
	}
	return obj
}

// Calibrate runs calibrateCamera over every stored snapshot.
func (c *Calibrator) Calibrate() (*models.CameraInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.imagePoints) == 0 {
		return nil, ErrNoSnapshots
	}

	obj := boardCornerPositions(c.boardSize, c.squareSize)
	// pin the far end of the first row to the measured grid width
	gridWidth := float32(c.squareSize * float64(c.boardSize.X-1))
	obj[c.boardSize.X-1].X = obj[0].X + gridWidth

	objectSets := make([][]gocv.Point3f, len(c.imagePoints))
	for i := range objectSets {
		objectSets[i] = obj
	}

	objectPoints := gocv.NewPoints3fVectorFromPoints(objectSets)
	defer objectPoints.Close()
	imagePoints := gocv.NewPoints2fVectorFromPoints(c.imagePoints)
	defer imagePoints.Close()

	cameraMatrix := gocv.Eye(3, 3, gocv.MatTypeCV64FC1)
	defer cameraMatrix.Close()
	distCoeffs := gocv.Zeros(8, 1, gocv.MatTypeCV64FC1)
	defer distCoeffs.Close()
	rvecs := gocv.NewMat()
	defer rvecs.Close()
	tvecs := gocv.NewMat()
	defer tvecs.Close()

	started := time.Now()
	rms := gocv.CalibrateCamera(objectPoints, imagePoints, c.imageSize,
		&cameraMatrix, &distCoeffs, &rvecs, &tvecs, 0)

	info := &models.CameraInfo{
		ImageWidth:  c.imageSize.X,
		ImageHeight: c.imageSize.Y,
		RMS:         rms,
		BoardWidth:  c.boardSize.X,
		BoardHeight: c.boardSize.Y,
		SquareSize:  c.squareSize,
		Snapshots:   len(c.imagePoints),
		CapturedAt:  time.Now().UTC(),
	}
	if err := info.SetFromMats(cameraMatrix, distCoeffs); err != nil {
		return nil, fmt.Errorf("reading calibration result: %w", err)
	}

	c.logger.Info("Calibrator", "camera calibrated", map[string]interface{}{
		"snapshots":   len(c.imagePoints),
		"rms":         rms,
		"fx":          info.Matrix[0],
		"fy":          info.Matrix[4],
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return info, nil
}

// Undistort returns frame corrected with info. The caller owns the result.
func Undistort(frame gocv.Mat, info *models.CameraInfo) (gocv.Mat, error) {
	if err := safe.ValidateMat(frame, "undistort"); err != nil {
		return gocv.NewMat(), err
	}
	if err := info.Validate(); err != nil {
		return gocv.NewMat(), err
	}

	cameraMatrix := info.CameraMat()
	defer cameraMatrix.Close()
	distCoeffs := info.DistortionMat()
	defer distCoeffs.Close()

	out := gocv.NewMat()
	gocv.Undistort(frame, &out, cameraMatrix, distCoeffs, cameraMatrix)
	return out, nil
}
