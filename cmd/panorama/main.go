package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"pano-calib/internal/config"
	"pano-calib/internal/debug/timing"
	"pano-calib/internal/features"
	"pano-calib/internal/imageio"
	"pano-calib/internal/logger"
	"pano-calib/internal/opencv/memory"
	"pano-calib/internal/shutdown"
	"pano-calib/internal/stitch"
	"pano-calib/internal/viewer"

	"gocv.io/x/gocv"
)

const HelpBanner = `panorama - stitches three overlapping photos, ordered left to right.

Usage: panorama -left L.jpg -middle M.jpg -right R.jpg [flags]

`

// stdoutName as -out streams the panorama to standard output.
const stdoutName = "-"

var (
	left       = flag.String("left", "", "Left image")
	middle     = flag.String("middle", "", "Middle image")
	right      = flag.String("right", "", "Right image")
	detector   = flag.String("detector", "", "Feature detector: surf (1), sift (2) or orb")
	matcher    = flag.String("matcher", "", "Descriptor matcher: flann or bf-hamming (default depends on detector)")
	mode       = flag.String("mode", "", "Stitch order: 0/left-left, 1/left-right (default), 2/right-right")
	height     = flag.Int("height", 0, "Height of the black canvas each input is centred on (800 unless configured, 0 disables)")
	ratio      = flag.Float64("ratio", 0, "Lowe ratio test threshold")
	symmetric  = flag.Bool("symmetric", false, "Keep only matches found in both directions")
	output     = flag.String("out", "", "Output file, \"-\" writes JPEG to stdout")
	configPath = flag.String("config", "", "YAML config file")
	show       = flag.Bool("show", false, "Open a window with the result")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, HelpBanner)
		flag.PrintDefaults()
	}
	flag.Parse()

	configureRuntime()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "panorama: %v\n", err)
		os.Exit(1)
	}
}

// configureRuntime favours fewer, larger collections; most of the heap is
// short lived image buffers.
func configureRuntime() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	debug.SetGCPercent(200)
}

func run() error {
	if *left == "" || *middle == "" || *right == "" {
		flag.Usage()
		return errors.New("-left, -middle and -right are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cfg); err != nil {
		return err
	}

	log := logger.New(cfg.Level(), os.Stderr)
	log.Info("Panorama", "starting", map[string]interface{}{
		"go_version": runtime.Version(),
		"detector":   cfg.Stitcher.Detector,
		"mode":       cfg.Stitcher.Mode.String(),
	})

	mgr := shutdown.NewManager(context.Background(), log)
	mgr.Listen()
	defer mgr.Shutdown()
	ctx := mgr.Context()

	tracker := timing.NewTracker()
	mem := memory.NewTracker(log)
	defer mem.Report()

	loader := imageio.NewLoader(mem, log, tracker)
	var images [3]*imageio.Image
	for i, path := range []string{*left, *middle, *right} {
		img, err := loader.LoadFromPath(ctx, path)
		if err != nil {
			return err
		}
		defer img.Close()
		images[i] = img
	}

	detKind, err := features.ParseDetectorKind(cfg.Stitcher.Detector)
	if err != nil {
		return err
	}
	matchKind := features.DefaultMatcher(detKind)
	if cfg.Stitcher.Matcher != "" {
		if matchKind, err = features.ParseMatcherKind(cfg.Stitcher.Matcher); err != nil {
			return err
		}
	}
	if err := features.CheckCompatible(detKind, matchKind); err != nil {
		return err
	}

	det, err := features.NewDetector(detKind)
	if err != nil {
		return err
	}
	defer det.Close()

	m, err := features.NewMatcher(matchKind)
	if err != nil {
		return err
	}
	defer m.Close()

	pipeline := features.NewPipeline(det, m, features.Options{
		Ratio:     cfg.Stitcher.Ratio,
		Symmetric: cfg.Stitcher.Symmetric,
	}, log)
	stitcher := stitch.New(pipeline, cfg.RANSAC(), log, tracker)

	inputs := []gocv.Mat{images[0].Mat.GetMat(), images[1].Mat.GetMat(), images[2].Mat.GetMat()}
	if cfg.Stitcher.CanvasHeight > 0 {
		if inputs, err = stitch.OnCanvas(cfg.Stitcher.CanvasHeight, inputs...); err != nil {
			return err
		}
		for _, in := range inputs {
			defer in.Close()
		}
	}

	started := time.Now()
	pano, err := stitcher.Stitch(ctx, inputs[0], inputs[1], inputs[2], cfg.Stitcher.Mode)
	switch {
	case errors.Is(err, stitch.ErrNotEnoughMatches):
		return fmt.Errorf("%w; try another -mode or -detector", err)
	case errors.Is(err, stitch.ErrUnequalHeights):
		return fmt.Errorf("%w; set -height to put the inputs on a common canvas", err)
	case err != nil:
		return err
	}
	defer pano.Close()

	saver := imageio.NewSaver(log, tracker)
	written := stdoutName
	if cfg.Stitcher.Output == stdoutName {
		err = saver.SaveToWriter(os.Stdout, pano, "jpeg")
	} else {
		written, err = saver.SaveToPath(ctx, cfg.Stitcher.Output, pano)
	}
	if err != nil {
		return err
	}

	elapsed := time.Since(started)
	tracker.LogSummary(log)
	fmt.Fprintf(os.Stderr, "%s (%dx%d) in %s\n", written, pano.Cols(), pano.Rows(), elapsed.Round(time.Millisecond))

	if *show {
		preview, err := imageio.Preview(pano, 1920, 1080)
		if err != nil {
			return err
		}
		status := fmt.Sprintf("%s, %s mode, %s", written, cfg.Stitcher.Mode, elapsed.Round(time.Millisecond))
		viewer.Show(ctx, "Panorama", viewer.New(status, viewer.Panel{Title: "Panorama", Image: preview}))
	}
	return nil
}

// applyFlags copies explicitly set flags over the config file values.
func applyFlags(cfg *config.Config) error {
	var err error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "detector":
			cfg.Stitcher.Detector = *detector
		case "matcher":
			cfg.Stitcher.Matcher = *matcher
		case "mode":
			var m stitch.Mode
			if m, err = stitch.ParseMode(*mode); err == nil {
				cfg.Stitcher.Mode = m
			}
		case "height":
			cfg.Stitcher.CanvasHeight = *height
		case "ratio":
			cfg.Stitcher.Ratio = *ratio
		case "symmetric":
			cfg.Stitcher.Symmetric = *symmetric
		case "out":
			cfg.Stitcher.Output = *output
		}
	})
	if err != nil {
		return err
	}
	return cfg.Validate()
}
