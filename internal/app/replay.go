// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/calibration"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/codec"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/config"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/observability"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/session"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// ReplayOptions control how a recorded session is pushed through a fresh
// pipeline.
type ReplayOptions struct {
	Config *config.Config
	// FileSettings takes mounting and thresholds from the session header
	// instead of Config.
	FileSettings bool
	// Calibration overrides the record stored in the session.
	Calibration *calibration.Record
}

// Report is what a replay produced.
type Report struct {
	Version     int                             `yaml:"version"`
	SampleRate  float64                         `yaml:"sample_rate_hz"`
	Frame       string                          `yaml:"frame"`
	Summary     session.Summary                 `yaml:"summary"`
	Adaptive    *session.Summary                `yaml:"adaptive,omitempty"`
	AdaptiveErr string                          `yaml:"adaptive_error,omitempty"`
	Diagnostics map[pipeline.DiagnosticKind]int `yaml:"diagnostics,omitempty"`
	Metrics     map[string]float64              `yaml:"metrics,omitempty"`

	Strokes         []stroke.Event `yaml:"-"`
	AdaptiveStrokes []stroke.Event `yaml:"-"`
}

// PipelineConfig resolves the pipeline context for one session.
func PipelineConfig(s *codec.Session, opts ReplayOptions) (pipeline.Config, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	p := cfg.Pipeline()
	if opts.FileSettings {
		p.Mounting = s.Meta.Mounting
		if s.Meta.CatchThreshold > s.Meta.FinishThreshold {
			p.CatchThreshold = s.Meta.CatchThreshold
			p.FinishThreshold = s.Meta.FinishThreshold
		}
	}
	p.Calibration = s.Calibration
	if opts.Calibration != nil {
		p.Calibration = opts.Calibration
	}
	if p.Frame == pipeline.FrameCalibrated && p.Calibration == nil {
		return p, fmt.Errorf("session v%d: %w", s.Version, pipeline.ErrNoCalibration)
	}
	// keep the whole outing for the closing adaptive pass
	if n := len(s.IMU); n > p.HistorySize {
		p.HistorySize = n
	}
	return p, nil
}

// Analyze replays s through a new pipeline. Extra observers see every
// event as it happens.
func Analyze(ctx context.Context, s *codec.Session, opts ReplayOptions, extra ...pipeline.Observer) (*Report, error) {
	pcfg, err := PipelineConfig(s, opts)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		return nil, err
	}
	rec := &pipeline.Recorder{}
	obs := append(pipeline.Observers{rec, metrics}, extra...)

	p, err := pipeline.New(pcfg, obs)
	if err != nil {
		return nil, err
	}
	if err := pipeline.Run(ctx, imu.NewSliceSource(s.IMU), p); err != nil {
		return nil, err
	}

	r := &Report{
		Version:     s.Version,
		SampleRate:  p.SampleRate(),
		Frame:       pcfg.Frame.String(),
		Strokes:     rec.Strokes,
		Summary:     session.Summarize(rec.Strokes, s.GPS),
		Diagnostics: map[pipeline.DiagnosticKind]int{},
	}
	for _, d := range rec.Diagnostics {
		r.Diagnostics[d.Kind]++
	}

	if res, err := p.Analyze(); err != nil {
		r.AdaptiveErr = err.Error()
	} else {
		r.AdaptiveStrokes = res.Strokes
		sum := session.Summarize(res.Strokes, s.GPS)
		r.Adaptive = &sum
	}

	if r.Metrics, err = metrics.Snapshot(); err != nil {
		return nil, err
	}
	return r, nil
}

// ReadSession decodes a container file.
func ReadSession(path string) (*codec.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer f.Close()
	s, err := codec.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// RunReplay analyses the session at path, logs events as they happen and
// writes the report as YAML to out.
func RunReplay(ctx context.Context, path string, opts ReplayOptions, logger *zap.Logger, out io.Writer) (*Report, error) {
	s, err := ReadSession(path)
	if err != nil {
		return nil, err
	}
	logger.Info("replaying session",
		zap.String("file", path),
		zap.Int("version", s.Version),
		zap.Int("imu", len(s.IMU)),
		zap.Int("gps", len(s.GPS)),
		zap.Bool("calibrated", s.Calibration != nil),
	)

	r, err := Analyze(ctx, s, opts, NewLogObserver(logger.Named("pipeline")))
	if err != nil {
		return nil, err
	}
	for _, line := range r.Summary.Lines() {
		logger.Info(line)
	}
	if out != nil {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return r, fmt.Errorf("write report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return r, err
		}
	}
	return r, nil
}
