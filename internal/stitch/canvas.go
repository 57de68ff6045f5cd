package stitch

import (
	"errors"
	"fmt"

	"pano-calib/internal/opencv/conversion"

	"gocv.io/x/gocv"
)

// ErrUnequalHeights is returned by Stitch when the inputs differ in height.
var ErrUnequalHeights = errors.New("stitch inputs must share one height")

// OnCanvas centres every image on a black canvas of height rows. The inputs
// then share a height, and the parts of a warp that land above or below the
// source rows stay in frame. The caller owns the returned Mats.
func OnCanvas(height int, imgs ...gocv.Mat) ([]gocv.Mat, error) {
	out := make([]gocv.Mat, 0, len(imgs))
	for i, img := range imgs {
		canvas, err := conversion.PutOnCanvas(img, height)
		if err != nil {
			for _, m := range out {
				m.Close()
			}
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, canvas)
	}
	return out, nil
}
