// Package viewer shows result images in a fyne window.
package viewer

import (
	"context"
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const (
	DisplayWidth  = 960
	DisplayHeight = 540
	appID         = "io.github.pano-calib"
)

// Panel is one titled image in the window.
type Panel struct {
	Title string
	Image image.Image
}

type Viewer struct {
	container *fyne.Container
	images    []*canvas.Image
	status    *widget.Label
}

func New(status string, panels ...Panel) *Viewer {
	v := &Viewer{status: widget.NewLabel(status)}

	columns := make([]fyne.CanvasObject, 0, len(panels))
	for _, p := range panels {
		img := canvas.NewImageFromImage(p.Image)
		img.FillMode = canvas.ImageFillContain
		img.SetMinSize(fyne.NewSize(DisplayWidth/float32(max(len(panels), 1)), DisplayHeight))
		v.images = append(v.images, img)

		columns = append(columns, container.NewBorder(
			widget.NewRichTextFromMarkdown("**"+p.Title+"**"), nil, nil, nil,
			img,
		))
	}

	v.container = container.NewBorder(
		nil, v.status, nil, nil,
		container.NewGridWithColumns(max(len(columns), 1), columns...),
	)
	return v
}

func (v *Viewer) Container() *fyne.Container {
	return v.container
}

func (v *Viewer) Panels() int {
	return len(v.images)
}

func (v *Viewer) Status() string {
	return v.status.Text
}

// Show opens a window with v and blocks until it is closed or ctx is done.
func Show(ctx context.Context, title string, v *Viewer) {
	a := app.NewWithID(appID)
	w := a.NewWindow(title)
	w.SetContent(v.Container())
	w.Resize(fyne.NewSize(DisplayWidth, DisplayHeight+40))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			fyne.Do(a.Quit)
		case <-stop:
		}
	}()

	w.ShowAndRun()
}
