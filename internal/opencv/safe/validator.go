package safe

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned when an operation receives an empty Mat.
var ErrEmptyImage = errors.New("empty image")

func ValidateMat(mat gocv.Mat, operation string) error {
	if mat.Empty() {
		return fmt.Errorf("%w for operation: %s", ErrEmptyImage, operation)
	}

	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("Mat has invalid dimensions %dx%d for operation: %s",
			mat.Cols(), mat.Rows(), operation)
	}

	return nil
}

// ValidateColorImage requires a non-empty 3-channel 8-bit image.
func ValidateColorImage(mat gocv.Mat, operation string) error {
	if err := ValidateMat(mat, operation); err != nil {
		return err
	}

	if mat.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("operation %s requires an 8-bit 3-channel image, got %d channels (type %d)",
			operation, mat.Channels(), int(mat.Type()))
	}

	return nil
}

func ValidateDimensions(width, height int, operation string) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d for operation: %s", width, height, operation)
	}

	if width > 32768 || height > 32768 {
		return fmt.Errorf("dimensions %dx%d exceed maximum size for operation: %s", width, height, operation)
	}

	return nil
}

// ValidateRegion checks that rect lies inside a rows x cols image.
func ValidateRegion(rect image.Rectangle, rows, cols int, operation string) error {
	if rect.Empty() {
		return fmt.Errorf("empty region %v for operation: %s", rect, operation)
	}

	if !rect.In(image.Rect(0, 0, cols, rows)) {
		return fmt.Errorf("region %v outside %dx%d for operation: %s", rect, cols, rows, operation)
	}

	return nil
}
