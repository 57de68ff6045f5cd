package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"

	"pano-calib/internal/calibration"
	"pano-calib/internal/camera"
	"pano-calib/internal/imageio"
	"pano-calib/internal/opencv/memory"

	"gocv.io/x/gocv"
)

func calibrateCommand() command {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	device := fs.String("device", "", "Capture device index or video file for live calibration")
	boardW := fs.Int("board-width", 0, "Inner corners per chessboard row")
	boardH := fs.Int("board-height", 0, "Inner corners per chessboard column")
	square := fs.Float64("square", 0, "Chessboard square size, in the unit reported distances should use")
	out := fs.String("out", "", "Where to write the calibration YAML")

	return command{
		flags: fs,
		run: func(ctx context.Context, env *environment, args []string) error {
			cal := &env.cfg.Calibration
			if *boardW > 0 {
				cal.BoardWidth = *boardW
			}
			if *boardH > 0 {
				cal.BoardHeight = *boardH
			}
			if *square > 0 {
				cal.SquareSize = *square
			}
			if *out != "" {
				cal.Output = *out
			}
			if err := env.cfg.Validate(); err != nil {
				return err
			}

			opts := env.cfg.CalibrationOptions()
			calibrator := calibration.NewCalibrator(opts, env.log)

			if *device != "" {
				return calibrateLive(ctx, env, calibrator, opts, *device)
			}
			if len(args) == 0 {
				return errors.New("give chessboard photos or -device")
			}
			return calibrateFiles(ctx, env, calibrator, args)
		},
	}
}

func calibrateFiles(ctx context.Context, env *environment, calibrator *calibration.Calibrator, paths []string) error {
	mem := memory.NewTracker(env.log)
	defer mem.Report()
	loader := imageio.NewLoader(mem, env.log, nil)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := loader.LoadFromPath(ctx, path)
		if err != nil {
			return err
		}

		frame := img.Mat.GetMat()
		if calibrator.Snapshots() == 0 {
			size := image.Pt(frame.Cols(), frame.Rows())
			if err := calibrator.SetSizes(image.Pt(env.cfg.Calibration.BoardWidth, env.cfg.Calibration.BoardHeight),
				size, env.cfg.Calibration.SquareSize); err != nil {
				img.Close()
				return err
			}
		}

		before := calibrator.Snapshots()
		n, err := calibrator.IdentifyChessboard(&frame, true)
		img.Close()
		if err != nil {
			env.log.Warning("Calibrate", "skipping image", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		if n == before {
			env.log.Warning("Calibrate", "no chessboard found", map[string]interface{}{"path": path})
		}
	}

	info, err := calibrator.Calibrate()
	if err != nil {
		return err
	}
	if err := info.Save(env.cfg.Calibration.Output); err != nil {
		return err
	}

	fmt.Print(info.Dump())
	fmt.Printf("saved to %s\n", env.cfg.Calibration.Output)
	return nil
}

func calibrateLive(ctx context.Context, env *environment, calibrator *calibration.Calibrator, opts calibration.Options, device string) error {
	capture, err := camera.Open(device)
	if err != nil {
		return err
	}
	defer capture.Close()

	// closed here rather than by the shutdown manager; Run owns them until it returns
	window := gocv.NewWindow("Calibration")
	defer window.Close()

	session := camera.NewCalibrationSession(calibrator, opts, env.cfg.Calibration.Output, env.log)
	if err := camera.Run(ctx, capture, window, session, env.log); err != nil {
		return err
	}

	if session.Result == nil {
		fmt.Printf("no calibration saved (%d snapshots taken)\n", calibrator.Snapshots())
		return nil
	}
	fmt.Print(session.Result.Dump())
	return nil
}
