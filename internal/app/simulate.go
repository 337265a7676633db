package app

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/codec"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/sim"
)

// Simulate builds a synthetic session in the requested container version.
// Version 1 cannot carry calibration, so it is dropped there.
func Simulate(cfg sim.Config, version int) (*codec.Session, error) {
	s, err := sim.Session(cfg)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		version = codec.LatestVersion
	}
	s.Version = version
	if version < 2 {
		s.Calibration = nil
		s.CalibrationSamples = nil
	}
	return s, nil
}

// RunSimulate writes a synthetic session to path.
func RunSimulate(cfg sim.Config, version int, path string, logger *zap.Logger) error {
	s, err := Simulate(cfg, version)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := codec.Write(f, s); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("simulated session written",
		zap.String("file", path),
		zap.Int("version", s.Version),
		zap.Int("imu", len(s.IMU)),
		zap.Int("gps", len(s.GPS)),
		zap.Int("calibration_samples", len(s.CalibrationSamples)),
		zap.Float64("spm", cfg.StrokeRate),
		zap.Stringer("mounting", cfg.Mounting),
	)
	return nil
}
