package conversion

import (
	"fmt"
	"image"

	"pano-calib/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ConvertToGrayscale converts BGR, BGRA or single-channel images to 8-bit gray.
// The caller owns the returned Mat.
func ConvertToGrayscale(src gocv.Mat) (gocv.Mat, error) {
	if err := safe.ValidateMat(src, "grayscale conversion"); err != nil {
		return gocv.NewMat(), fmt.Errorf("validation failed: %w", err)
	}

	dst := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&dst)
	case 3:
		gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToGray)
	default:
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported channel count: %d", src.Channels())
	}

	return dst, nil
}

// DropAlpha converts a 4-channel RGBA frame to 3 channels in place.
// Frames with other channel counts are left untouched.
func DropAlpha(frame *gocv.Mat) {
	if frame.Channels() != 4 {
		return
	}
	gocv.CvtColor(*frame, frame, gocv.ColorBGRAToBGR)
}

// PutOnCanvas centres img vertically on a black canvas targetHeight rows tall,
// so the warped borders stay visible after stitching. Images taller than the
// canvas are scaled down to fit, keeping their aspect ratio.
func PutOnCanvas(img gocv.Mat, targetHeight int) (gocv.Mat, error) {
	if err := safe.ValidateMat(img, "put on canvas"); err != nil {
		return gocv.NewMat(), err
	}
	if targetHeight <= 0 {
		return gocv.NewMat(), fmt.Errorf("invalid canvas height %d", targetHeight)
	}

	width, height := img.Cols(), img.Rows()
	if height > targetHeight {
		width = width * targetHeight / height
		height = targetHeight
	}
	if err := safe.ValidateDimensions(width, height, "put on canvas"); err != nil {
		return gocv.NewMat(), err
	}

	canvas := gocv.Zeros(targetHeight, width, img.Type())
	roi := canvas.Region(image.Rect(0, (targetHeight-height)/2, width, (targetHeight-height)/2+height))
	defer roi.Close()

	if width == img.Cols() && height == img.Rows() {
		img.CopyTo(&roi)
		return canvas, nil
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationArea)
	resized.CopyTo(&roi)

	return canvas, nil
}

// Crop copies rect out of src into a new, continuous Mat.
func Crop(src gocv.Mat, rect image.Rectangle) (gocv.Mat, error) {
	if err := safe.ValidateMat(src, "crop"); err != nil {
		return gocv.NewMat(), err
	}
	if err := safe.ValidateRegion(rect, src.Rows(), src.Cols(), "crop"); err != nil {
		return gocv.NewMat(), err
	}

	region := src.Region(rect)
	defer region.Close()
	return region.Clone(), nil
}

// Paste copies src into dst with its top-left corner at origin.
func Paste(dst *gocv.Mat, src gocv.Mat, origin image.Point) error {
	rect := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(src.Cols(), src.Rows()))}
	if err := safe.ValidateRegion(rect, dst.Rows(), dst.Cols(), "paste"); err != nil {
		return err
	}

	region := dst.Region(rect)
	defer region.Close()
	src.CopyTo(&region)
	return nil
}

// MatToImage converts a Mat to a standard Go image.
func MatToImage(src gocv.Mat) (image.Image, error) {
	if err := safe.ValidateMat(src, "Mat to image conversion"); err != nil {
		return nil, err
	}

	img, err := src.ToImage()
	if err != nil {
		return nil, fmt.Errorf("Mat to image conversion: %w", err)
	}
	return img, nil
}
