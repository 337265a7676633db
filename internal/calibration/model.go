// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration estimates the fixed mounting tilt of the phone from a
// window of samples captured while the boat is still.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/ring"
)

const (
	// MinSamples is the smallest window Complete accepts.
	MinSamples = 50
	// DefaultMaxSamples bounds the capture window; the newest samples win.
	DefaultMaxSamples = 500
)

var (
	ErrInsufficientSamples = errors.New("calibration: insufficient samples")
	ErrInvalidState        = errors.New("calibration: invalid state transition")
)

type State int

const (
	Idle State = iota
	Calibrating
	Calibrated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Calibrating:
		return "calibrating"
	case Calibrated:
		return "calibrated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Model drives a calibration capture: Idle -> Calibrating -> Calibrated.
type Model struct {
	state   State
	samples *ring.Buffer[imu.RawSample]
	record  Record
}

// NewModel returns an idle model keeping at most maxSamples samples
// (DefaultMaxSamples when maxSamples < MinSamples).
func NewModel(maxSamples int) *Model {
	if maxSamples < MinSamples {
		maxSamples = DefaultMaxSamples
	}
	return &Model{samples: ring.New[imu.RawSample](maxSamples)}
}

func (m *Model) State() State { return m.state }

// Start begins a capture. Only valid from Idle.
func (m *Model) Start() error {
	if m.state != Idle {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, m.state)
	}
	m.samples.Reset()
	m.state = Calibrating
	return nil
}

// AddSample buffers s while calibrating and is a no-op otherwise.
// Non-finite samples are skipped.
func (m *Model) AddSample(s imu.RawSample) {
	if m.state != Calibrating || !s.Finite() {
		return
	}
	m.samples.Push(s)
}

// Len returns the number of buffered samples.
func (m *Model) Len() int { return m.samples.Len() }

// Samples returns the buffered capture window, oldest first.
func (m *Model) Samples() []imu.RawSample { return m.samples.Snapshot() }

// Complete derives the record from the buffered window. With fewer than
// MinSamples the model stays in Calibrating so the capture can continue.
func (m *Model) Complete() (Record, error) {
	if m.state != Calibrating {
		return Record{}, fmt.Errorf("%w: complete from %s", ErrInvalidState, m.state)
	}
	n := m.samples.Len()
	if n < MinSamples {
		return Record{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, n, MinSamples)
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)
	for i := 0; i < n; i++ {
		s := m.samples.At(i)
		xs[i], ys[i], zs[i] = s.Ax, s.Ay, s.Az
	}
	mx, vx := stat.PopMeanVariance(xs, nil)
	my, vy := stat.PopMeanVariance(ys, nil)
	mz, vz := stat.PopMeanVariance(zs, nil)
	mean := r3.Vector{X: mx, Y: my, Z: mz}

	m.record = Record{
		RollOffset:       -math.Atan2(mean.X, math.Hypot(mean.Y, mean.Z)) * radToDeg,
		PitchOffset:      -math.Atan2(mean.Y, math.Hypot(mean.X, mean.Z)) * radToDeg,
		GravityMagnitude: mean.Norm(),
		Samples:          n,
		Variance:         (vx + vy + vz) / 3,
		Timestamp:        m.samples.At(n - 1).T,
	}
	m.state = Calibrated
	return m.record, nil
}

// Record returns the completed record; ok is false before Complete succeeds.
func (m *Model) Record() (Record, bool) {
	return m.record, m.state == Calibrated
}

// Apply corrects v with the completed record, or returns v unchanged.
func (m *Model) Apply(v r3.Vector) r3.Vector {
	if m.state != Calibrated {
		return v
	}
	return m.record.Apply(v)
}

// Reset returns to Idle and forgets the capture.
func (m *Model) Reset() {
	m.state = Idle
	m.samples.Reset()
	m.record = Record{}
}
