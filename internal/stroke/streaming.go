// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stroke

import (
	"fmt"
	"math"
)

const (
	DefaultCatchThreshold  = 0.6
	DefaultFinishThreshold = -0.3
	DefaultMinDrive        = 150.0  // ms, shorter excursions are noise
	DefaultMinCycle        = 800.0  // ms, 75 spm
	DefaultMaxCycle        = 6000.0 // ms, 10 spm; longer gaps restart the count
)

type Phase int

const (
	Recovery Phase = iota
	Drive
)

func (p Phase) String() string {
	if p == Drive {
		return "drive"
	}
	return "recovery"
}

// Detector is the causal two-state segmenter. A catch is an upward crossing
// of the catch threshold, a finish a downward crossing of the finish
// threshold; crossing times are interpolated between samples.
type Detector struct {
	catchThreshold  float64
	finishThreshold float64
	minDrive        float64
	minCycle        float64
	maxCycle        float64
	baselineWindow  float64
	onReject        func(Rejection)

	baseline *Baseline

	phase        Phase
	havePrev     bool
	prevT, prevC float64
	catchT       float64
	peak         float64
	recMin       float64
	catchRecMin  float64
	prevFinish   float64
	haveFinish   bool
}

type DetectorOption func(*Detector)

func WithThresholds(catch, finish float64) DetectorOption {
	return func(d *Detector) {
		d.catchThreshold, d.finishThreshold = catch, finish
	}
}

// WithBaselineWindow sets the baseline window in ms; 0 disables correction.
func WithBaselineWindow(ms float64) DetectorOption {
	return func(d *Detector) { d.baselineWindow = ms }
}

// WithCycleLimits sets the minimum drive and the cycle range in ms.
func WithCycleLimits(minDrive, minCycle, maxCycle float64) DetectorOption {
	return func(d *Detector) {
		d.minDrive, d.minCycle, d.maxCycle = minDrive, minCycle, maxCycle
	}
}

// WithRejectHandler receives every dropped candidate and invalid sample.
func WithRejectHandler(fn func(Rejection)) DetectorOption {
	return func(d *Detector) { d.onReject = fn }
}

func NewDetector(opts ...DetectorOption) (*Detector, error) {
	d := &Detector{
		catchThreshold:  DefaultCatchThreshold,
		finishThreshold: DefaultFinishThreshold,
		minDrive:        DefaultMinDrive,
		minCycle:        DefaultMinCycle,
		maxCycle:        DefaultMaxCycle,
		baselineWindow:  DefaultBaselineWindow,
	}
	for _, opt := range opts {
		opt(d)
	}
	if !(d.catchThreshold > d.finishThreshold) {
		return nil, fmt.Errorf("%w: catch %v, finish %v", ErrInvalidThreshold, d.catchThreshold, d.finishThreshold)
	}
	if d.baselineWindow > 0 {
		d.baseline = NewBaseline(d.baselineWindow)
	}
	d.Reset()
	return d, nil
}

// Process consumes one filtered surge sample (t in ms) and returns a stroke
// when this sample completed one.
func (d *Detector) Process(t, v float64) (Event, bool) {
	if !finite(t) || !finite(v) || (d.havePrev && t <= d.prevT) {
		d.reject(Rejection{Time: t, Reason: ReasonInvalidSample})
		return Event{}, false
	}

	c := v
	if d.baseline != nil {
		d.baseline.Expire(t)
		c = d.baseline.Correct(v)
	}

	var (
		ev      Event
		emitted bool
	)
	if d.havePrev {
		switch d.phase {
		case Recovery:
			if d.prevC < d.catchThreshold && c >= d.catchThreshold {
				d.catchT = crossing(d.prevT, d.prevC, t, c, d.catchThreshold)
				d.catchRecMin = d.recMin
				d.peak = c
				d.phase = Drive
			} else {
				d.recMin = math.Min(d.recMin, c)
			}
		case Drive:
			d.peak = math.Max(d.peak, c)
			if d.prevC > d.finishThreshold && c <= d.finishThreshold {
				finish := crossing(d.prevT, d.prevC, t, c, d.finishThreshold)
				ev, emitted = d.finishStroke(finish)
				d.phase = Recovery
				d.recMin = c
			}
		}
	} else {
		d.recMin = c
	}

	if d.baseline != nil {
		d.baseline.Add(t, v)
	}
	d.havePrev = true
	d.prevT, d.prevC = t, c
	return ev, emitted
}

func (d *Detector) finishStroke(finish float64) (Event, bool) {
	drive := finish - d.catchT
	if drive < d.minDrive {
		d.reject(Rejection{Time: d.catchT, Reason: ReasonDriveTooShort, Duration: drive})
		return Event{}, false
	}

	ev := Event{
		CatchTime:  d.catchT,
		FinishTime: finish,
		DriveTime:  drive,
		PeakAccel:  d.peak,
		MinAccel:   d.catchRecMin,
	}
	if d.haveFinish {
		recovery := d.catchT - d.prevFinish
		cycle := drive + recovery
		if cycle < d.minCycle {
			d.reject(Rejection{Time: d.catchT, Reason: ReasonCycleTooShort, Duration: cycle})
			return Event{}, false
		}
		if cycle <= d.maxCycle {
			ev.RecoveryTime = recovery
		}
	}
	ev.fillRates()

	d.prevFinish = finish
	d.haveFinish = true
	return ev, true
}

// Phase returns the current segmenter state.
func (d *Detector) Phase() Phase { return d.phase }

// SetThresholds retunes the detector. An in-flight drive is discarded; the
// baseline and the last finish are kept.
func (d *Detector) SetThresholds(catch, finish float64) error {
	if !(catch > finish) {
		return fmt.Errorf("%w: catch %v, finish %v", ErrInvalidThreshold, catch, finish)
	}
	d.catchThreshold, d.finishThreshold = catch, finish
	d.phase = Recovery
	return nil
}

// Reset forgets all state, including the baseline.
func (d *Detector) Reset() {
	d.phase = Recovery
	d.havePrev = false
	d.prevT, d.prevC = 0, 0
	d.catchT, d.peak = 0, 0
	d.recMin, d.catchRecMin = 0, 0
	d.prevFinish, d.haveFinish = 0, false
	if d.baseline != nil {
		d.baseline.Reset()
	}
}

func (d *Detector) reject(r Rejection) {
	if d.onReject != nil {
		d.onReject(r)
	}
}

// crossing interpolates the time at which the segment (t0,v0)-(t1,v1)
// reaches level.
func crossing(t0, v0, t1, v1, level float64) float64 {
	if v1 == v0 {
		return t1
	}
	return t0 + (level-v0)/(v1-v0)*(t1-t0)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
