// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pipeline runs raw phone samples through orientation, frame
// transform, band-pass and stroke segmentation, one sample at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/calibration"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/filter"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/frame"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/orientation"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/ring"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// FrameMode selects how phone acceleration becomes boat acceleration.
type FrameMode int

const (
	// FrameOrientation removes gravity predicted by the live orientation.
	FrameOrientation FrameMode = iota
	// FrameCalibrated levels with the mounting calibration record.
	FrameCalibrated
	// FrameAuto finds the boat axes by PCA and falls back to
	// FrameOrientation until they are known.
	FrameAuto
)

func (m FrameMode) String() string {
	switch m {
	case FrameOrientation:
		return "orientation"
	case FrameCalibrated:
		return "calibrated"
	case FrameAuto:
		return "auto"
	}
	return fmt.Sprintf("FrameMode(%d)", int(m))
}

func ParseFrameMode(s string) (FrameMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "orientation", "":
		return FrameOrientation, nil
	case "calibrated", "calibration":
		return FrameCalibrated, nil
	case "auto", "pca":
		return FrameAuto, nil
	}
	return 0, fmt.Errorf("unknown frame mode %q", s)
}

var (
	ErrNoCalibration = errors.New("pipeline: calibrated frame mode needs a calibration record")
	ErrNotReady      = errors.New("pipeline: sample rate not measured yet")
)

// Config is the explicit context handed to every stage.
type Config struct {
	// SampleRate in Hz; 0 measures it over the first WarmupSamples.
	SampleRate    float64
	WarmupSamples int

	Alpha       float64
	Mounting    frame.MountingMode
	Frame       FrameMode
	Calibration *calibration.Record

	LowCut, HighCut float64

	CatchThreshold, FinishThreshold float64
	BaselineWindow                  float64 // ms, 0 disables
	MinDrive, MinCycle, MaxCycle    float64 // ms

	AxisWindow   int
	MotionFloor  float64
	AxisInterval float64 // ms between PCA runs in FrameAuto

	// HistorySize bounds the filtered trace kept for adaptive analysis.
	HistorySize int
	// AnalysisInterval is the ms between periodic adaptive passes; 0
	// disables them (Analyze can still be called).
	AnalysisInterval float64
	Adaptive         stroke.AdaptiveConfig
}

func DefaultConfig() Config {
	return Config{
		WarmupSamples:    50,
		Alpha:            0.98,
		Mounting:         frame.Rower,
		Frame:            FrameOrientation,
		LowCut:           filter.DefaultLowCut,
		HighCut:          filter.DefaultHighCut,
		CatchThreshold:   stroke.DefaultCatchThreshold,
		FinishThreshold:  stroke.DefaultFinishThreshold,
		BaselineWindow:   stroke.DefaultBaselineWindow,
		MinDrive:         stroke.DefaultMinDrive,
		MinCycle:         stroke.DefaultMinCycle,
		MaxCycle:         stroke.DefaultMaxCycle,
		AxisWindow:       frame.DefaultAxisWindow,
		MotionFloor:      frame.DefaultMotionFloor,
		AxisInterval:     2000,
		HistorySize:      1500,
		AnalysisInterval: 0,
		Adaptive:         stroke.DefaultAdaptiveConfig(),
	}
}

type point struct{ t, v float64 }

// Pipeline is single-owner: feed it from one goroutine.
type Pipeline struct {
	cfg Config
	obs Observer

	rate     float64
	meter    filter.RateMeter
	warmup   []imu.RawSample
	ready    bool
	haveT    bool
	lastT    float64
	stepped  bool
	lastStep float64
	lastPCA  float64
	lastAna  float64

	estimator *orientation.Estimator
	det       frame.Deterministic
	axes      *frame.AxisDetector
	detected  *frame.DetectedAxes
	bandpass  *filter.BandPass
	detector  *stroke.Detector
	history   *ring.Buffer[point]
}

func New(cfg Config, obs Observer) (*Pipeline, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	if cfg.Frame == FrameCalibrated && cfg.Calibration == nil {
		return nil, ErrNoCalibration
	}
	if cfg.WarmupSamples < 2 {
		cfg.WarmupSamples = 2
	}
	if cfg.HistorySize < cfg.Adaptive.MinSamples {
		cfg.HistorySize = cfg.Adaptive.MinSamples
	}

	est, err := orientation.NewEstimator(cfg.Alpha)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:       cfg,
		obs:       obs,
		estimator: est,
		det:       frame.Deterministic{Mounting: cfg.Mounting},
		history:   ring.New[point](cfg.HistorySize),
	}
	if cfg.Frame == FrameCalibrated {
		p.det.Gravity = cfg.Calibration.GravityMagnitude
	}
	if cfg.Frame == FrameAuto {
		p.axes = frame.NewAxisDetector(cfg.AxisWindow, cfg.MotionFloor)
	}
	p.detector, err = stroke.NewDetector(
		stroke.WithThresholds(cfg.CatchThreshold, cfg.FinishThreshold),
		stroke.WithBaselineWindow(cfg.BaselineWindow),
		stroke.WithCycleLimits(cfg.MinDrive, cfg.MinCycle, cfg.MaxCycle),
		stroke.WithRejectHandler(func(r stroke.Rejection) {
			p.obs.OnDiagnostic(Diagnostic{T: r.Time, Kind: Rejected, Rejection: &r})
		}),
	)
	if err != nil {
		return nil, err
	}
	if cfg.SampleRate > 0 {
		if err := p.start(cfg.SampleRate); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) start(rate float64) error {
	bp, err := filter.NewBandPass(p.cfg.LowCut, p.cfg.HighCut, rate)
	if err != nil {
		return err
	}
	p.rate, p.bandpass, p.ready = rate, bp, true
	return nil
}

// Process consumes one raw sample. Invalid samples are reported and
// skipped; the error is only set when the measured rate cannot carry the
// configured band.
func (p *Pipeline) Process(s imu.RawSample) error {
	if !s.Finite() {
		p.obs.OnDiagnostic(Diagnostic{T: s.T, Kind: InvalidSample, Err: errors.New("non-finite sample")})
		return nil
	}
	if p.haveT && s.T <= p.lastT {
		p.obs.OnDiagnostic(Diagnostic{T: s.T, Kind: InvalidSample, Err: fmt.Errorf("timestamp %v not after %v", s.T, p.lastT)})
		return nil
	}
	p.haveT, p.lastT = true, s.T

	if p.ready {
		p.step(s)
		return nil
	}
	p.meter.Observe(s.T)
	p.warmup = append(p.warmup, s)
	if len(p.warmup) < p.cfg.WarmupSamples {
		return nil
	}
	return p.Flush()
}

// Flush ends the warm-up early, measuring the rate from what has been
// buffered so far. It is a no-op once the pipeline is running.
func (p *Pipeline) Flush() error {
	if p.ready {
		return nil
	}
	rate, err := p.meter.Rate()
	if err != nil {
		return err
	}
	if err := p.start(rate); err != nil {
		return fmt.Errorf("pipeline: measured %.1f Hz: %w", rate, err)
	}
	p.obs.OnDiagnostic(Diagnostic{T: p.lastT, Kind: RateMeasured, Rate: rate})
	buffered := p.warmup
	p.warmup = nil
	for _, s := range buffered {
		p.step(s)
	}
	return nil
}

func (p *Pipeline) step(s imu.RawSample) {
	dt := 1 / p.rate
	if p.stepped {
		dt = (s.T - p.lastStep) / 1000
	}
	p.stepped, p.lastStep = true, s.T

	o, err := p.estimator.Update(s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz, dt)
	if err != nil {
		p.obs.OnDiagnostic(Diagnostic{T: s.T, Kind: OrientationReject, Err: err})
		o = p.estimator.Orientation()
	}

	a := r3.Vector{X: s.Ax, Y: s.Ay, Z: s.Az}
	var boat frame.BoatAcceleration
	switch p.cfg.Frame {
	case FrameCalibrated:
		boat = p.det.Transform(p.cfg.Calibration.Apply(a), orientation.Orientation{})
	case FrameAuto:
		p.axes.Add(a)
		if s.T-p.lastPCA >= p.cfg.AxisInterval {
			p.lastPCA = s.T
			p.detectAxes(s.T)
		}
		if p.detected != nil {
			boat = p.detected.Project(a)
		} else {
			boat = p.det.Transform(a, o)
		}
	default:
		boat = p.det.Transform(a, o)
	}

	v := p.bandpass.Process(boat.Surge)
	p.history.Push(point{t: s.T, v: v})
	if ev, ok := p.detector.Process(s.T, v); ok {
		p.obs.OnStroke(ev)
	}
	p.obs.OnSample(Output{T: s.T, Orientation: o, Boat: boat, Filtered: v, Phase: p.detector.Phase()})

	if p.cfg.AnalysisInterval > 0 && s.T-p.lastAna >= p.cfg.AnalysisInterval && p.history.Full() {
		p.lastAna = s.T
		res, err := p.Analyze()
		p.obs.OnAnalysis(Analysis{T: s.T, Result: res, Err: err})
	}
}

// detectAxes refreshes the PCA frame. The previous axes stay in use when
// the window is not conclusive.
func (p *Pipeline) detectAxes(t float64) {
	axes, err := p.axes.Detect()
	if err != nil {
		p.obs.OnDiagnostic(Diagnostic{T: t, Kind: AxesUnavailable, Err: err})
		return
	}
	if !axes.Reliable() {
		p.obs.OnDiagnostic(Diagnostic{T: t, Kind: AxesUnreliable, Axes: &axes})
		if p.detected != nil {
			return
		}
	} else {
		p.obs.OnDiagnostic(Diagnostic{T: t, Kind: AxesDetected, Axes: &axes})
	}
	p.detected = &axes
}

// Analyze runs the adaptive detector over the buffered filtered history.
func (p *Pipeline) Analyze() (stroke.AdaptiveResult, error) {
	if !p.ready {
		return stroke.AdaptiveResult{}, ErrNotReady
	}
	pts := p.history.Snapshot()
	values := make([]float64, len(pts))
	times := make([]float64, len(pts))
	for i, pt := range pts {
		values[i], times[i] = pt.v, pt.t
	}
	return stroke.DetectAdaptive(values, times, p.cfg.Adaptive)
}

// SampleRate returns the rate in use, 0 during warm-up.
func (p *Pipeline) SampleRate() float64 { return p.rate }

// Axes returns the PCA frame in use, if any.
func (p *Pipeline) Axes() (frame.DetectedAxes, bool) {
	if p.detected == nil {
		return frame.DetectedAxes{}, false
	}
	return *p.detected, true
}

// SetThresholds retunes the streaming detector; an in-flight drive is
// discarded.
func (p *Pipeline) SetThresholds(catch, finish float64) error {
	if err := p.detector.SetThresholds(catch, finish); err != nil {
		return err
	}
	p.cfg.CatchThreshold, p.cfg.FinishThreshold = catch, finish
	return nil
}

// Reset returns every stage to its initial state. A configured sample rate
// is kept, a measured one is measured again.
func (p *Pipeline) Reset() {
	p.estimator.Reset()
	p.detector.Reset()
	p.history.Reset()
	if p.axes != nil {
		p.axes.Reset()
	}
	p.detected = nil
	p.meter.Reset()
	p.warmup = nil
	p.haveT, p.lastT, p.stepped, p.lastStep = false, 0, false, 0
	p.lastPCA, p.lastAna = 0, 0
	if p.cfg.SampleRate > 0 {
		p.bandpass.Reset()
	} else {
		p.ready, p.rate, p.bandpass = false, 0, nil
	}
}

// Run feeds src into p until the source ends or ctx is cancelled. A
// source ending with io.EOF flushes a pending warm-up.
func Run(ctx context.Context, src imu.Source, p *Pipeline) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			if len(p.warmup) >= 2 {
				return p.Flush()
			}
			return nil
		}
		if err != nil {
			return err
		}
		if err := p.Process(s); err != nil {
			return err
		}
	}
}
