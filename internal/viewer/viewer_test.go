package viewer

import (
	"image"
	"image/color"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Black)
	return img
}

func TestNewBuildsOnePanelPerImage(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	v := New("stitched in 1.2s",
		Panel{Title: "Panorama", Image: solid(40, 10)},
		Panel{Title: "Left", Image: solid(10, 10)},
	)

	assert.Equal(t, 2, v.Panels())
	assert.Equal(t, "stitched in 1.2s", v.Status())
	assert.NotNil(t, v.Container())
	assert.Len(t, v.Container().Objects, 2)
}

func TestNewWithoutPanels(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	v := New("nothing to show")
	assert.Zero(t, v.Panels())
	assert.Len(t, v.Container().Objects, 2)
}
