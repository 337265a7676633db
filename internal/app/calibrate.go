// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/calibration"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
)

// DefaultStillWindow is how much of a source Calibrate captures, ms.
const DefaultStillWindow = 3000.0

// Calibrate captures window ms of samples from src and derives the
// mounting record. The source is expected to sit still for that long.
func Calibrate(ctx context.Context, src imu.Source, window float64) (calibration.Record, error) {
	if window <= 0 {
		window = DefaultStillWindow
	}
	m := calibration.NewModel(calibration.DefaultMaxSamples)
	if err := m.Start(); err != nil {
		return calibration.Record{}, err
	}

	first := -1.0
	for {
		if err := ctx.Err(); err != nil {
			return calibration.Record{}, err
		}
		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return calibration.Record{}, err
		}
		if first < 0 {
			first = s.T
		}
		if s.T-first > window {
			break
		}
		m.AddSample(s)
	}
	return m.Complete()
}

// SaveCalibration writes r as YAML.
func SaveCalibration(path string, r calibration.Record) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal calibration record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}

// LoadCalibration reads a record written by SaveCalibration.
func LoadCalibration(path string) (*calibration.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}
	var r calibration.Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	if r.Samples < calibration.MinSamples || r.GravityMagnitude <= 0 {
		return nil, fmt.Errorf("calibration file %s: %w", path, calibration.ErrInsufficientSamples)
	}
	return &r, nil
}

// CalibrateOptions pick the sample source for RunCalibrate.
type CalibrateOptions struct {
	// Session, when set, is a container whose calibration samples (or,
	// lacking those, its first Window ms of IMU data) are used.
	Session string
	// URL is a live phone stream used when Session is empty.
	URL    string
	Window float64 // ms
	Output string
}

// RunCalibrate derives a record from a recorded session or a live stream
// and saves it to opts.Output.
func RunCalibrate(ctx context.Context, opts CalibrateOptions, logger *zap.Logger) (calibration.Record, error) {
	var src imu.Source
	switch {
	case opts.Session != "":
		s, err := ReadSession(opts.Session)
		if err != nil {
			return calibration.Record{}, err
		}
		samples := s.CalibrationSamples
		if len(samples) < calibration.MinSamples {
			logger.Info("no calibration window in session, using the start of the recording",
				zap.Int("calibration_samples", len(samples)))
			samples = s.IMU
		}
		src = imu.NewSliceSource(samples)
	case opts.URL != "":
		ws, err := imu.DialWebSocket(ctx, opts.URL)
		if err != nil {
			return calibration.Record{}, err
		}
		defer ws.Close()
		logger.Info("keep the boat still", zap.Float64("window_ms", opts.Window))
		src = ws
	default:
		return calibration.Record{}, errors.New("calibrate: need a session file or a stream URL")
	}

	r, err := Calibrate(ctx, src, opts.Window)
	if err != nil {
		return r, err
	}
	pitch, roll := r.MountingTilt()
	logger.Info("calibration complete",
		zap.Float64("pitch_offset", r.PitchOffset),
		zap.Float64("roll_offset", r.RollOffset),
		zap.Float64("mount_pitch", pitch),
		zap.Float64("mount_roll", roll),
		zap.Float64("gravity", r.GravityMagnitude),
		zap.Int("samples", r.Samples),
		zap.String("quality", r.QualityLabel()),
	)
	if !r.GravityPlausible() {
		logger.Warn("gravity magnitude is implausible, was the phone moving?", zap.Float64("gravity", r.GravityMagnitude))
	}

	if opts.Output != "" {
		if err := SaveCalibration(opts.Output, r); err != nil {
			return r, err
		}
		logger.Info("calibration saved", zap.String("file", opts.Output))
	}
	return r, nil
}
