package camera

import (
	"errors"
	"fmt"
	"image"

	"pano-calib/internal/calibration"
	"pano-calib/internal/logger"
	"pano-calib/internal/markers"
	"pano-calib/internal/models"

	"gocv.io/x/gocv"
)

// CalibrationSession collects chessboard snapshots on SPACE, calibrates and
// saves on 'c' and starts over on 'r'.
type CalibrationSession struct {
	calibrator *calibration.Calibrator
	board      image.Point
	squareSize float64
	outPath    string
	logger     logger.Logger

	Result *models.CameraInfo
}

func NewCalibrationSession(c *calibration.Calibrator, opts calibration.Options, outPath string, log logger.Logger) *CalibrationSession {
	return &CalibrationSession{
		calibrator: c,
		board:      opts.BoardSize,
		squareSize: opts.SquareSize,
		outPath:    outPath,
		logger:     log,
	}
}

func (s *CalibrationSession) HandleFrame(frame *gocv.Mat, key int) error {
	size := image.Pt(frame.Cols(), frame.Rows())
	if s.calibrator.ImageSize() != size {
		if err := s.calibrator.SetSizes(s.board, size, s.squareSize); err != nil {
			return err
		}
	}

	switch key {
	case 'r':
		s.calibrator.Reset()
		s.Result = nil
	case 'c':
		if err := s.calibrate(); err != nil {
			return err
		}
	}

	n, err := s.calibrator.IdentifyChessboard(frame, key == KeySpace)
	if err != nil {
		return err
	}

	status := fmt.Sprintf("snapshots: %d  [space] capture  [c] calibrate  [q] quit", n)
	if s.Result != nil {
		Overlay(frame, status, fmt.Sprintf("rms: %.4f  saved to %s", s.Result.RMS, s.outPath))
	} else {
		Overlay(frame, status)
	}
	return nil
}

func (s *CalibrationSession) calibrate() error {
	info, err := s.calibrator.Calibrate()
	if errors.Is(err, calibration.ErrNoSnapshots) {
		s.logger.Warning("CalibrationSession", "take snapshots before calibrating", nil)
		return nil
	}
	if err != nil {
		return err
	}

	if s.outPath != "" {
		if err := info.Save(s.outPath); err != nil {
			return err
		}
		s.logger.Info("CalibrationSession", "calibration saved", map[string]interface{}{
			"path": s.outPath,
			"rms":  info.RMS,
		})
	}
	s.Result = info
	return nil
}

// MarkerSession annotates each frame with marker outlines, axes and distances.
type MarkerSession struct {
	detector *markers.Detector
	info     *models.CameraInfo
	logger   logger.Logger

	Last []float64
}

func NewMarkerSession(d *markers.Detector, info *models.CameraInfo, log logger.Logger) *MarkerSession {
	return &MarkerSession{detector: d, info: info, logger: log}
}

func (s *MarkerSession) HandleFrame(frame *gocv.Mat, _ int) error {
	poses, err := s.detector.Detect(frame, s.info)
	if err != nil {
		return err
	}
	s.Last = markers.Distances(poses)

	lines := make([]string, 0, len(poses))
	for _, p := range poses {
		lines = append(lines, fmt.Sprintf("marker %d: %.3f m", p.ID, p.Distance))
	}
	Overlay(frame, lines...)
	return nil
}
