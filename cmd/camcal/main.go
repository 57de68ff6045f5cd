package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"pano-calib/internal/config"
	"pano-calib/internal/logger"
	"pano-calib/internal/shutdown"
)

const HelpBanner = `camcal - chessboard camera calibration and ArUco marker distances.

Usage:
  camcal calibrate [flags] board1.jpg board2.jpg ...   calibrate from photos
  camcal calibrate -device 0 [flags]                   calibrate live (SPACE snapshot, c calibrate, q quit)
  camcal undistort -info camera.yaml -in photo.jpg -out fixed.jpg
  camcal markers -info camera.yaml (-device 0 | photo.jpg)
  camcal show -info camera.yaml

`

type command struct {
	flags *flag.FlagSet
	run   func(ctx context.Context, env *environment, args []string) error
}

// environment is what every subcommand shares.
type environment struct {
	cfg *config.Config
	log logger.Logger
	mgr *shutdown.Manager
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, HelpBanner)
		os.Exit(2)
	}

	commands := map[string]command{
		"calibrate": calibrateCommand(),
		"undistort": undistortCommand(),
		"markers":   markersCommand(),
		"show":      showCommand(),
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "camcal: unknown command %q\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, HelpBanner)
		os.Exit(2)
	}

	configPath := cmd.flags.String("config", "", "YAML config file")
	cmd.flags.Usage = func() {
		fmt.Fprint(os.Stderr, HelpBanner)
		cmd.flags.PrintDefaults()
	}
	if err := cmd.flags.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	if err := execute(cmd, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "camcal %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func execute(cmd command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Level(), os.Stderr)
	mgr := shutdown.NewManager(context.Background(), log)
	mgr.Listen()
	defer mgr.Shutdown()

	env := &environment{cfg: cfg, log: log, mgr: mgr}
	err = cmd.run(mgr.Context(), env, cmd.flags.Args())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
