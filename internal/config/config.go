// Package config loads the YAML settings shared by the command line tools.
package config

import (
	"errors"
	"fmt"
	"image"
	"os"

	"pano-calib/internal/calibration"
	"pano-calib/internal/features"
	"pano-calib/internal/logger"
	"pano-calib/internal/markers"
	"pano-calib/internal/stitch"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Stitcher    StitcherConfig    `yaml:"stitcher"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Markers     MarkersConfig     `yaml:"markers"`
}

type StitcherConfig struct {
	Detector     string      `yaml:"detector"`
	Matcher      string      `yaml:"matcher"`
	Mode         stitch.Mode `yaml:"mode"`
	CanvasHeight int         `yaml:"canvas_height"`
	Ratio        float64     `yaml:"ratio"`
	Symmetric    bool        `yaml:"symmetric"`
	Output       string      `yaml:"output"`
	RANSAC       RANSAC      `yaml:"ransac"`
}

type RANSAC struct {
	ReprojThreshold float64 `yaml:"reproj_threshold"`
	MaxIters        int     `yaml:"max_iters"`
	Confidence      float64 `yaml:"confidence"`
}

type CalibrationConfig struct {
	BoardWidth   int     `yaml:"board_width"`
	BoardHeight  int     `yaml:"board_height"`
	SquareSize   float64 `yaml:"square_size"`
	MaxSnapshots int     `yaml:"max_snapshots"`
	Output       string  `yaml:"output"`
}

type MarkersConfig struct {
	Dictionary   string  `yaml:"dictionary"`
	MarkerLength float64 `yaml:"marker_length"`
	AxisLength   float64 `yaml:"axis_length"`
}

const (
	DefaultCanvasHeight   = 800
	DefaultCalibrationOut = "camera_info.yaml"
)

func Default() *Config {
	ransac := stitch.DefaultRANSAC()
	cal := calibration.DefaultOptions()
	mk := markers.DefaultOptions()

	return &Config{
		LogLevel: "info",
		Stitcher: StitcherConfig{
			Detector:     string(features.SURF),
			Mode:         stitch.ModeLeftRight,
			CanvasHeight: DefaultCanvasHeight,
			Ratio:        features.DefaultRatio,
			Output:       "resulting_pano_image.jpg",
			RANSAC: RANSAC{
				ReprojThreshold: ransac.ReprojThreshold,
				MaxIters:        ransac.MaxIters,
				Confidence:      ransac.Confidence,
			},
		},
		Calibration: CalibrationConfig{
			BoardWidth:   cal.BoardSize.X,
			BoardHeight:  cal.BoardSize.Y,
			SquareSize:   cal.SquareSize,
			MaxSnapshots: cal.MaxSnapshots,
			Output:       DefaultCalibrationOut,
		},
		Markers: MarkersConfig{
			Dictionary:   mk.Dictionary,
			MarkerLength: mk.MarkerLength,
			AxisLength:   mk.AxisLength,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults and
// a missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := features.ParseDetectorKind(c.Stitcher.Detector); err != nil {
		errs = append(errs, err)
	}
	if c.Stitcher.Matcher != "" {
		if _, err := features.ParseMatcherKind(c.Stitcher.Matcher); err != nil {
			errs = append(errs, err)
		}
	}
	if !c.Stitcher.Mode.Valid() {
		errs = append(errs, fmt.Errorf("%w: %d", stitch.ErrInvalidMode, int(c.Stitcher.Mode)))
	}
	if c.Stitcher.CanvasHeight < 0 {
		errs = append(errs, fmt.Errorf("canvas_height must not be negative"))
	}
	if c.Stitcher.Ratio <= 0 || c.Stitcher.Ratio > 1 {
		errs = append(errs, fmt.Errorf("ratio must be in (0, 1], got %g", c.Stitcher.Ratio))
	}
	if c.Calibration.BoardWidth < 2 || c.Calibration.BoardHeight < 2 {
		errs = append(errs, fmt.Errorf("board must have at least 2x2 inner corners"))
	}
	if c.Calibration.SquareSize <= 0 {
		errs = append(errs, fmt.Errorf("square_size must be positive"))
	}
	if _, err := markers.ParseDictionary(c.Markers.Dictionary); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Level resolves the log level, letting LOG_LEVEL and DEBUG override the file.
func (c *Config) Level() logger.LogLevel {
	if os.Getenv("LOG_LEVEL") != "" || os.Getenv("DEBUG") != "" {
		return logger.LevelFromEnv()
	}
	return logger.ParseLevel(c.LogLevel)
}

func (c *Config) RANSAC() stitch.RANSAC {
	return stitch.RANSAC{
		ReprojThreshold: c.Stitcher.RANSAC.ReprojThreshold,
		MaxIters:        c.Stitcher.RANSAC.MaxIters,
		Confidence:      c.Stitcher.RANSAC.Confidence,
	}
}

func (c *Config) CalibrationOptions() calibration.Options {
	return calibration.Options{
		BoardSize:    image.Pt(c.Calibration.BoardWidth, c.Calibration.BoardHeight),
		SquareSize:   c.Calibration.SquareSize,
		MaxSnapshots: c.Calibration.MaxSnapshots,
	}
}

func (c *Config) MarkerOptions() markers.Options {
	return markers.Options{
		Dictionary:   c.Markers.Dictionary,
		MarkerLength: c.Markers.MarkerLength,
		AxisLength:   c.Markers.AxisLength,
	}
}
