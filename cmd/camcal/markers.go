package main

import (
	"context"
	"flag"
	"fmt"

	"pano-calib/internal/camera"
	"pano-calib/internal/imageio"
	"pano-calib/internal/markers"
	"pano-calib/internal/models"

	"gocv.io/x/gocv"
)

func markersCommand() command {
	fs := flag.NewFlagSet("markers", flag.ExitOnError)
	infoPath := fs.String("info", "", "Calibration YAML (defaults to the configured output)")
	device := fs.String("device", "", "Capture device index or video file")
	length := fs.Float64("length", 0, "Marker side length")
	dictionary := fs.String("dict", "", "ArUco dictionary, e.g. 6x6_250")
	out := fs.String("out", "", "Write the annotated photo here")

	return command{
		flags: fs,
		run: func(ctx context.Context, env *environment, args []string) error {
			if *length > 0 {
				env.cfg.Markers.MarkerLength = *length
			}
			if *dictionary != "" {
				env.cfg.Markers.Dictionary = *dictionary
			}

			info, err := models.LoadCameraInfo(infoOrDefault(env, *infoPath))
			if err != nil {
				return err
			}

			detector, err := markers.NewDetector(env.cfg.MarkerOptions(), env.log)
			if err != nil {
				return err
			}
			env.mgr.Register("marker detector", detector)

			if *device != "" {
				capture, err := camera.Open(*device)
				if err != nil {
					return err
				}
				defer capture.Close()
				window := gocv.NewWindow("Markers")
				defer window.Close()

				return camera.Run(ctx, capture, window, camera.NewMarkerSession(detector, info, env.log), env.log)
			}

			if len(args) != 1 {
				return fmt.Errorf("give one photo or -device")
			}
			return markersInPhoto(ctx, env, detector, info, args[0], *out)
		},
	}
}

func markersInPhoto(ctx context.Context, env *environment, detector *markers.Detector, info *models.CameraInfo, path, out string) error {
	img, err := imageio.NewLoader(nil, env.log, nil).LoadFromPath(ctx, path)
	if err != nil {
		return err
	}
	defer img.Close()

	frame := img.Mat.GetMat()
	poses, err := detector.Detect(&frame, info)
	if err != nil {
		return err
	}

	for _, p := range poses {
		fmt.Printf("marker %d: distance %.4f  tvec (%.4f, %.4f, %.4f)\n",
			p.ID, p.Distance, p.TVec.X, p.TVec.Y, p.TVec.Z)
	}
	if len(poses) == 0 {
		fmt.Println("no markers found")
	}

	if out != "" {
		if _, err := imageio.NewSaver(env.log, nil).SaveToPath(ctx, out, frame); err != nil {
			return err
		}
	}
	return nil
}
