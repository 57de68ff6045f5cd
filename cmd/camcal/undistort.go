package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"pano-calib/internal/calibration"
	"pano-calib/internal/imageio"
	"pano-calib/internal/models"
	"pano-calib/internal/viewer"
)

func undistortCommand() command {
	fs := flag.NewFlagSet("undistort", flag.ExitOnError)
	infoPath := fs.String("info", "", "Calibration YAML (defaults to the configured output)")
	in := fs.String("in", "", "Photo to correct")
	out := fs.String("out", "undistorted.jpg", "Corrected photo")
	show := fs.Bool("show", false, "Show original and corrected side by side")

	return command{
		flags: fs,
		run: func(ctx context.Context, env *environment, _ []string) error {
			if *in == "" {
				return errors.New("-in is required")
			}
			info, err := models.LoadCameraInfo(infoOrDefault(env, *infoPath))
			if err != nil {
				return err
			}

			img, err := imageio.NewLoader(nil, env.log, nil).LoadFromPath(ctx, *in)
			if err != nil {
				return err
			}
			defer img.Close()

			fixed, err := calibration.Undistort(img.Mat.GetMat(), info)
			if err != nil {
				return err
			}
			defer fixed.Close()

			written, err := imageio.NewSaver(env.log, nil).SaveToPath(ctx, *out, fixed)
			if err != nil {
				return err
			}
			fmt.Println(written)

			if *show {
				before, err := imageio.Preview(img.Mat.GetMat(), 960, 540)
				if err != nil {
					return err
				}
				after, err := imageio.Preview(fixed, 960, 540)
				if err != nil {
					return err
				}
				viewer.Show(ctx, "Undistort", viewer.New(written,
					viewer.Panel{Title: "Original", Image: before},
					viewer.Panel{Title: "Undistorted", Image: after},
				))
			}
			return nil
		},
	}
}

func infoOrDefault(env *environment, path string) string {
	if path != "" {
		return path
	}
	return env.cfg.Calibration.Output
}

func showCommand() command {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	infoPath := fs.String("info", "", "Calibration YAML (defaults to the configured output)")

	return command{
		flags: fs,
		run: func(_ context.Context, env *environment, _ []string) error {
			info, err := models.LoadCameraInfo(infoOrDefault(env, *infoPath))
			if err != nil {
				return err
			}
			fmt.Print(info.Dump())
			return nil
		},
	}
}
