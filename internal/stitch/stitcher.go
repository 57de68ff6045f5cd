package stitch

import (
	"context"
	"errors"
	"fmt"
	"image"

	"pano-calib/internal/debug/timing"
	"pano-calib/internal/features"
	"pano-calib/internal/geometry"
	"pano-calib/internal/logger"
	"pano-calib/internal/opencv/conversion"
	"pano-calib/internal/opencv/safe"

	"gocv.io/x/gocv"
)

var (
	// ErrNotEnoughMatches means fewer than four correspondences survived filtering.
	ErrNotEnoughMatches = errors.New("not enough matches for a homography")
	// ErrNoHomography means RANSAC could not produce a model.
	ErrNoHomography = errors.New("homography estimation failed")
)

// CleanCutRatio is the share of the first right-right stitch kept before the
// second warp; the discarded strip is the stretched, ragged edge.
const CleanCutRatio = 0.9

// RANSAC parameters for FindHomography.
type RANSAC struct {
	ReprojThreshold float64
	MaxIters        int
	Confidence      float64
}

func DefaultRANSAC() RANSAC {
	return RANSAC{ReprojThreshold: 3, MaxIters: 2000, Confidence: 0.995}
}

// Stitcher joins three overlapping images into one panorama.
type Stitcher struct {
	matcher *features.Pipeline
	ransac  RANSAC
	logger  logger.Logger
	timing  *timing.Tracker
}

func New(matcher *features.Pipeline, ransac RANSAC, log logger.Logger, tracker *timing.Tracker) *Stitcher {
	if tracker == nil {
		tracker = timing.NewTracker()
	}
	return &Stitcher{matcher: matcher, ransac: ransac, logger: log, timing: tracker}
}

// Homography estimates the transform mapping first onto second.
func (s *Stitcher) Homography(ctx context.Context, first, second gocv.Mat) (geometry.Homography, error) {
	var corr features.Correspondences
	err := s.timing.Time(ctx, "match", func(ctx context.Context) error {
		var err error
		corr, err = s.matcher.Match(ctx, first, second)
		return err
	})
	if err != nil {
		return geometry.Homography{}, fmt.Errorf("matching features: %w", err)
	}
	if corr.Len() < 4 {
		return geometry.Homography{}, fmt.Errorf("%w: %d", ErrNotEnoughMatches, corr.Len())
	}

	srcVec := gocv.NewPoint2fVectorFromPoints(corr.Query)
	defer srcVec.Close()
	dstVec := gocv.NewPoint2fVectorFromPoints(corr.Train)
	defer dstVec.Close()

	src := gocv.NewMatFromPoint2fVector(srcVec, true)
	defer src.Close()
	dst := gocv.NewMatFromPoint2fVector(dstVec, true)
	defer dst.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	stageCtx := s.timing.StartTiming(ctx, "ransac")
	h := gocv.FindHomography(src, dst, gocv.HomographyMethodRANSAC,
		s.ransac.ReprojThreshold, &mask, s.ransac.MaxIters, s.ransac.Confidence)
	s.timing.EndTiming(stageCtx)
	defer h.Close()

	if h.Empty() {
		return geometry.Homography{}, ErrNoHomography
	}

	inliers := 0
	if !mask.Empty() {
		inliers = gocv.CountNonZero(mask)
	}
	s.logger.Debug("Stitcher", "homography estimated", map[string]interface{}{
		"matches": corr.Len(),
		"inliers": inliers,
	})

	return geometry.FromMat(h)
}

// StitchLeft warps left into the frame of right and places right, unwarped,
// in the rightmost columns of a left.cols+right.cols wide result.
func (s *Stitcher) StitchLeft(ctx context.Context, left, right gocv.Mat) (gocv.Mat, error) {
	h, err := s.Homography(ctx, left, right)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("stitch left: %w", err)
	}

	// shift the warped image right so it lands inside the frame
	transform := geometry.Translation(float64(left.Cols()), 0).Compose(h)

	out, err := s.warp(ctx, left, transform, image.Pt(left.Cols()+right.Cols(), left.Rows()))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("stitch left: %w", err)
	}

	if err := conversion.Paste(&out, right, image.Pt(out.Cols()-right.Cols(), 0)); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("stitch left: %w", err)
	}
	return out, nil
}

// StitchRight warps right into the frame of left and places left, unwarped, in
// the leftmost columns. With sideImage the canvas gets an extra right.cols of
// width so an outer image is not clipped.
func (s *Stitcher) StitchRight(ctx context.Context, left, right gocv.Mat, sideImage bool) (gocv.Mat, error) {
	h, err := s.Homography(ctx, right, left)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("stitch right: %w", err)
	}

	width := right.Cols()
	if sideImage {
		width = right.Cols() * 2
	}

	out, err := s.warp(ctx, right, h, image.Pt(width+left.Cols(), right.Rows()))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("stitch right: %w", err)
	}

	if err := conversion.Paste(&out, left, image.Pt(0, 0)); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("stitch right: %w", err)
	}
	return out, nil
}

func (s *Stitcher) warp(ctx context.Context, src gocv.Mat, h geometry.Homography, size image.Point) (gocv.Mat, error) {
	if err := safe.ValidateDimensions(size.X, size.Y, "warp perspective"); err != nil {
		return gocv.NewMat(), err
	}

	m := h.ToMat()
	defer m.Close()

	out := gocv.NewMat()
	stageCtx := s.timing.StartTiming(ctx, "warp")
	gocv.WarpPerspective(src, &out, m, size)
	s.timing.EndTiming(stageCtx)
	return out, nil
}

// Stitch builds a panorama from three images ordered left to right.
// The caller owns the returned Mat.
func (s *Stitcher) Stitch(ctx context.Context, left, middle, right gocv.Mat, mode Mode) (gocv.Mat, error) {
	if !mode.Valid() {
		return gocv.NewMat(), fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	for name, img := range map[string]gocv.Mat{"left": left, "middle": middle, "right": right} {
		if err := safe.ValidateColorImage(img, "stitch "+name); err != nil {
			return gocv.NewMat(), err
		}
	}
	if left.Rows() != middle.Rows() || middle.Rows() != right.Rows() {
		return gocv.NewMat(), fmt.Errorf("%w: %d, %d and %d rows", ErrUnequalHeights,
			left.Rows(), middle.Rows(), right.Rows())
	}

	s.logger.Info("Stitcher", "stitching panorama", map[string]interface{}{
		"mode": mode.String(),
	})

	stageCtx := s.timing.StartTiming(ctx, "stitch")
	defer s.timing.EndTiming(stageCtx)

	var first gocv.Mat
	var err error

	switch mode {
	case ModeLeftLeft:
		first, err = s.StitchLeft(ctx, middle, right)
	case ModeLeftRight:
		first, err = s.StitchLeft(ctx, left, middle)
	case ModeRightRight:
		first, err = s.StitchRight(ctx, left, middle, false)
	}
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("first stitch: %w", err)
	}
	defer first.Close()

	if err := ctx.Err(); err != nil {
		return gocv.NewMat(), err
	}

	var result gocv.Mat
	switch mode {
	case ModeLeftLeft:
		result, err = s.StitchLeft(ctx, left, first)
	case ModeLeftRight:
		result, err = s.StitchRight(ctx, first, right, true)
	case ModeRightRight:
		var cut gocv.Mat
		cut, err = conversion.Crop(first, image.Rect(0, 0, int(float64(first.Cols())*CleanCutRatio), first.Rows()))
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("clean cut: %w", err)
		}
		defer cut.Close()
		result, err = s.StitchRight(ctx, cut, right, true)
	}
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("second stitch: %w", err)
	}

	s.logger.Info("Stitcher", "panorama complete", map[string]interface{}{
		"width":  result.Cols(),
		"height": result.Rows(),
	})
	return result, nil
}
