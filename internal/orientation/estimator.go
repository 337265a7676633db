// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultAlpha weights gyro integration against accelerometer tilt.
	DefaultAlpha = 0.98
	// MaxInterval caps dt (seconds) so a gap in the stream cannot fling
	// the integrated angles.
	MaxInterval = 0.5
)

var (
	ErrInvalidAlpha    = errors.New("orientation: alpha must be in (0,1)")
	ErrInvalidInterval = errors.New("orientation: dt must be finite and positive")
	ErrNonFiniteInput  = errors.New("orientation: non-finite sensor value")
)

// Estimator is a complementary filter fusing gyro rates with accelerometer
// tilt. Pitch and roll are corrected by gravity; yaw has no absolute
// reference and only integrates gz.
type Estimator struct {
	alpha   float64
	initial *Orientation

	state  Orientation
	seeded bool
}

type Option func(*Estimator)

// WithInitial starts the filter from o instead of seeding from the first
// accelerometer reading.
func WithInitial(o Orientation) Option {
	return func(e *Estimator) {
		v := o
		e.initial = &v
	}
}

func NewEstimator(alpha float64, opts ...Option) (*Estimator, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAlpha, alpha)
	}
	e := &Estimator{alpha: alpha}
	for _, opt := range opts {
		opt(e)
	}
	e.Reset()
	return e, nil
}

// Update advances the filter by dt seconds. Accel in m/s², gyro in deg/s.
// Invalid input leaves the state untouched and returns it with an error.
func (e *Estimator) Update(ax, ay, az, gx, gy, gz, dt float64) (Orientation, error) {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return e.state, fmt.Errorf("%w: dt=%v", ErrInvalidInterval, dt)
	}
	for _, v := range [...]float64{ax, ay, az, gx, gy, gz} {
		if !finite(v) {
			return e.state, ErrNonFiniteInput
		}
	}
	if dt > MaxInterval {
		dt = MaxInterval
	}

	accPitch, accRoll := AccelTilt(ax, ay, az)
	norm := math.Sqrt(ax*ax + ay*ay + az*az)
	gravityDominated := norm > 0.5*StandardGravity && norm < 1.5*StandardGravity

	if !e.seeded {
		e.seeded = true
		if gravityDominated {
			e.state.Pitch, e.state.Roll = accPitch, accRoll
			return e.state, nil
		}
	}

	pitch := e.state.Pitch + gx*dt
	roll := e.state.Roll + gy*dt
	if gravityDominated {
		pitch = e.alpha*pitch + (1-e.alpha)*accPitch
		roll = e.alpha*roll + (1-e.alpha)*accRoll
	}
	e.state.Pitch = pitch
	e.state.Roll = roll
	e.state.Yaw = wrap180(e.state.Yaw + gz*dt)

	return e.state, nil
}

// Orientation returns the current estimate.
func (e *Estimator) Orientation() Orientation { return e.state }

// Reset returns to the construction state.
func (e *Estimator) Reset() {
	e.state = Orientation{}
	e.seeded = false
	if e.initial != nil {
		e.state = *e.initial
		e.seeded = true
	}
}

func wrap180(deg float64) float64 {
	deg = math.Mod(deg+180, 360)
	if deg < 0 {
		deg += 360
	}
	return deg - 180
}
